// Package runtime owns the process-wide connection table. It contains
// no business logic; routing rules live in the services layer.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"fmt"
	"log/slog"
	"sync"
)

type connSet map[contract.Connection]struct{}

// Registry maps each user to the set of their currently-live
// connections. It is the only piece of mutable state shared between
// connection goroutines; every mutation goes through its lock.
type Registry struct {
	mu    sync.RWMutex
	log   *slog.Logger
	conns map[domain.UserID]connSet
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:   log,
		conns: make(map[domain.UserID]connSet),
	}
}

// Register adds a connection to the user's set, creating the set if
// absent. A user may hold many simultaneous connections (tabs,
// devices); no limit is enforced here.
func (r *Registry) Register(user domain.UserID, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[user]
	if !ok {
		set = make(connSet)
		r.conns[user] = set
	}
	set[conn] = struct{}{}
	r.log.Debug("connection registered", "user_id", user, "conn_id", conn.ID(), "live", len(set))
}

// Unregister removes a connection from the user's set and closes its
// transport. When the set empties, the user entry is dropped entirely
// so IsOnline stays a cheap presence check. Removing a connection that
// is not present is a no-op; disconnect notifications race with
// explicit unregisters and both must be tolerated.
func (r *Registry) Unregister(user domain.UserID, conn contract.Connection) {
	r.mu.Lock()
	set, ok := r.conns[user]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, present := set[conn]; !present {
		r.mu.Unlock()
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, user)
	}
	remaining := len(set)
	r.mu.Unlock()

	// Dropping the reference alone would leak the transport.
	if err := conn.Close(); err != nil {
		r.log.Debug("closing unregistered connection", "conn_id", conn.ID(), "error", err)
	}
	r.log.Debug("connection unregistered", "user_id", user, "conn_id", conn.ID(), "live", remaining)
}

// SendTo attempts delivery of one payload to every live connection of
// a user. The set is snapshotted under the read lock and released
// before any send, so a slow peer never blocks the registry. Failed
// connections are collected and unregistered after the iteration;
// one dead socket must not suppress delivery to the others.
//
// Returns the number of successful deliveries. Zero means the user is
// not currently reachable, which is not an error: the caller may still
// have persisted the message for a later history read.
func (r *Registry) SendTo(user domain.UserID, payload []byte) int {
	r.mu.RLock()
	set := r.conns[user]
	snapshot := make([]contract.Connection, 0, len(set))
	for conn := range set {
		snapshot = append(snapshot, conn)
	}
	r.mu.RUnlock()

	delivered := 0
	var failed []contract.Connection
	for _, conn := range snapshot {
		if err := conn.Send(payload); err != nil {
			r.log.Warn(fmt.Sprintf("Send to connection %s failed, dropping it", conn.ID()),
				"user_id", user, "error", err)
			failed = append(failed, conn)
			continue
		}
		delivered++
	}

	for _, conn := range failed {
		r.Unregister(user, conn)
	}
	return delivered
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(user domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[user]
	return ok
}
