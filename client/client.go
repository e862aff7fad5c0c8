// Command client is a small terminal client for the relay. It logs in
// over HTTP, opens the websocket, prints everything the server pushes
// and turns stdin lines into frames:
//
//	@bob hello there    direct message to bob
//	/create <name>      create a group
//	/join <id>          join a group by id
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"chat-relay/domain"

	"github.com/Netflix/go-env"
	"github.com/gorilla/websocket"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=http://localhost:8080"`
	Username  string `env:"CHAT_USERNAME,required=true"`
	Password  string `env:"CHAT_PASSWORD,required=true"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles login, the websocket lifecycle and the stdin loop.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Authenticate over HTTP to obtain a session token.
	token, err := login(config)
	if err != nil {
		return exitRuntime, err
	}

	// 4. Open the websocket with the token in the query string.
	wsURL := strings.Replace(config.ServerURL, "http", "ws", 1) + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", wsURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer func() {
		fmt.Println("Closing connection...")
		_ = conn.Close()
	}()

	fmt.Printf(">>> Connected as %s (Ctrl+C to quit)\n", config.Username)

	// 5. Print server pushes until the connection drops.
	go func() {
		defer stop()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			fmt.Println(render(raw))
		}
	}()

	// 6. Stdin loop: translate lines into frames.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			frame, err := parseLine(scanner.Text())
			if err != nil {
				fmt.Println(err)
				continue
			}
			if frame == nil {
				continue
			}
			payload, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return exitOK, nil
}

func login(config Config) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": config.Username,
		"password": config.Password,
	})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(config.ServerURL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login rejected with status %d", resp.StatusCode)
	}

	var session struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("unreadable login response: %w", err)
	}
	return session.Token, nil
}

// parseLine maps one stdin line to a frame, or nil for blank input.
func parseLine(line string) (*domain.Frame, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil, nil

	case strings.HasPrefix(line, "@"):
		receiver, message, ok := strings.Cut(line[1:], " ")
		if !ok || message == "" {
			return nil, fmt.Errorf("usage: @<user> <message>")
		}
		return &domain.Frame{Kind: domain.KindSendMessage, Receiver: receiver, Message: message}, nil

	case strings.HasPrefix(line, "/create "):
		return &domain.Frame{Kind: domain.KindCreateGroup, GroupName: strings.TrimSpace(line[len("/create "):])}, nil

	case strings.HasPrefix(line, "/join "):
		id, err := strconv.ParseInt(strings.TrimSpace(line[len("/join "):]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("usage: /join <group id>")
		}
		return &domain.Frame{Kind: domain.KindJoinGroup, GroupToken: domain.GroupID(id)}, nil

	default:
		return nil, fmt.Errorf("unknown input; use @<user> <message>, /create <name> or /join <id>")
	}
}

// render pretty-prints a server push, falling back to the raw payload.
func render(raw []byte) string {
	var envelope domain.Envelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Type == domain.EnvelopeTypePrivate {
		at := time.Unix(envelope.Time, 0).Format(time.TimeOnly)
		return fmt.Sprintf("[%s] %d -> %d: %s", at, envelope.Sender, envelope.Receiver, envelope.Message)
	}

	var notice domain.Notice
	if err := json.Unmarshal(raw, &notice); err == nil && notice.Info != "" {
		return "* " + notice.Info
	}
	return string(raw)
}
