//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

// Connection is one live bidirectional channel to a single remote peer.
// It is owned by the transport layer that created it; the registry only
// holds references for the duration of the Active state.
type Connection interface {
	// ID returns a stable identifier for log correlation.
	ID() string
	// Send queues a payload for delivery without blocking the caller
	// beyond the single enqueue. An error means the connection is dead
	// or too slow and must be dropped from the registry.
	Send(payload []byte) error
	// Close releases the underlying transport. Idempotent.
	Close() error
}

// IRegistry is the process-wide table of live connections per user,
// with best-effort delivery primitives.
type IRegistry interface {
	Register(user domain.UserID, conn Connection)
	Unregister(user domain.UserID, conn Connection)
	SendTo(user domain.UserID, payload []byte) int
	IsOnline(user domain.UserID) bool
}

// IRouter turns one inbound frame into zero or more registry sends.
// The returned error is non-nil only for persistence failures; malformed
// frames are logged and dropped inside the router.
type IRouter interface {
	Dispatch(ctx context.Context, sender domain.UserID, raw []byte) error
}

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

type WorkerName string

// ISupervisor runs workers in goroutines and restarts them after panics.
type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
