// Package ws drives the per-connection state machine: accept,
// authenticate, register, pump messages, tear down.
package ws

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var (
	errSendBufferFull = errors.New("send buffer full")
	errClientClosed   = errors.New("client closed")
)

// Client is one live websocket connection under one identity. It
// implements contract.Connection: the registry delivers through Send,
// which enqueues onto a buffered channel drained by a single write
// pump, so payloads reach the peer in the order they were enqueued.
type Client struct {
	id        string
	user      domain.UserID
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
	router    contract.IRouter
	registry  contract.IRegistry
}

func NewClient(log *slog.Logger, conn *websocket.Conn, user domain.UserID,
	router contract.IRouter, registry contract.IRegistry, bufferSize int) *Client {
	return &Client{
		id:       uuid.NewString(),
		user:     user,
		conn:     conn,
		send:     make(chan []byte, bufferSize),
		done:     make(chan struct{}),
		log:      log,
		router:   router,
		registry: registry,
	}
}

func (c *Client) ID() string { return c.id }

// Send queues one payload without blocking beyond the enqueue. A full
// buffer means the peer is not draining; reporting an error here makes
// the registry drop the connection rather than stall a fan-out.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errSendBufferFull
	}
}

// Close releases the transport. Idempotent; safe from any goroutine.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// ReadLoop blocks until the peer disconnects or a fatal transport
// error occurs, dispatching every frame to the router. On exit the
// connection leaves the Active state: it is unregistered (which also
// closes the transport) and no further frames are processed.
func (c *Client) ReadLoop(ctx context.Context) {
	defer c.registry.Unregister(c.user, c)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug("Setting initial read deadline failed", "conn_id", c.id, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadTermination(err)
			return
		}
		// A request failure is contained to that request; only the
		// transport decides when this loop ends.
		if err := c.router.Dispatch(ctx, c.user, raw); err != nil {
			c.log.Error("Dispatch failed", "conn_id", c.id, "user_id", c.user, "error", err)
		}
	}
}

// WriteLoop drains the send queue onto the wire and keeps the
// connection alive with periodic pings. Runs in its own goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case payload := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("Write failed", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) logReadTermination(err error) {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info(fmt.Sprintf("Client %s disconnected", c.id), "user_id", c.user)
	case errors.Is(err, io.EOF), errors.Is(err, errClientClosed):
		c.log.Info(fmt.Sprintf("Client %s connection closed", c.id), "user_id", c.user)
	default:
		c.log.Warn(fmt.Sprintf("Client %s read error", c.id), "user_id", c.user, "error", err)
	}
}
