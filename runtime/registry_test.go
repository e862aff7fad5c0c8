package runtime

import (
	"chat-relay/domain"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id       string
	mu       sync.Mutex
	payloads [][]byte
	failSend bool
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.NewString()}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errSendFailed
	}
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payloads
}

var errSendFailed = &sendError{}

type sendError struct{}

func (*sendError) Error() string { return "send failed" }

func TestRegistry_SendTo_AllConnectionsOfUser(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	user := domain.UserID(1)
	conn1 := newFakeConn()
	conn2 := newFakeConn()

	registry.Register(user, conn1)
	registry.Register(user, conn2)

	delivered := registry.SendTo(user, []byte("hello"))

	req.Equal(2, delivered)
	req.Len(conn1.received(), 1)
	req.Len(conn2.received(), 1)
}

func TestRegistry_SendTo_DeadConnectionDoesNotSuppressOthers(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	user := domain.UserID(1)
	dead := newFakeConn()
	dead.failSend = true
	live := newFakeConn()

	registry.Register(user, dead)
	registry.Register(user, live)

	delivered := registry.SendTo(user, []byte("hello"))

	// The healthy connection still got the payload.
	req.Equal(1, delivered)
	req.Len(live.received(), 1)

	// The dead one was removed and closed lazily, at send time.
	req.True(dead.closed)
	req.Equal(1, registry.SendTo(user, []byte("again")))
	req.True(registry.IsOnline(user))
}

func TestRegistry_SendTo_UnknownUser(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())

	// Not an error, just unreachable.
	req.Zero(registry.SendTo(domain.UserID(42), []byte("hello")))
}

func TestRegistry_Unregister_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	user := domain.UserID(1)
	conn1 := newFakeConn()
	conn2 := newFakeConn()

	registry.Register(user, conn1)
	registry.Register(user, conn2)

	registry.Unregister(user, conn1)
	registry.Unregister(user, conn1)
	registry.Unregister(user, newFakeConn())

	req.True(registry.IsOnline(user))
	req.Equal(1, registry.SendTo(user, []byte("hello")))
	req.True(conn1.closed)
	req.False(conn2.closed)
}

func TestRegistry_LastUnregisterDropsEntry(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	user := domain.UserID(1)
	conn := newFakeConn()

	registry.Register(user, conn)
	req.True(registry.IsOnline(user))

	registry.Unregister(user, conn)

	req.False(registry.IsOnline(user))
	req.Empty(registry.conns)
	req.True(conn.closed)
}

func TestRegistry_ConcurrentRegisterSendUnregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	user := domain.UserID(1)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := newFakeConn()
			registry.Register(user, conn)
			registry.SendTo(user, []byte("x"))
			registry.Unregister(user, conn)
		}()
	}
	wg.Wait()

	req.False(registry.IsOnline(user))
	req.Empty(registry.conns)
}
