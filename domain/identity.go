// Package domain contains core concepts of the chat system:
// identities, groups, and the wire-level message shapes.
package domain

// UserID is the stable key for an authenticated user, issued by the
// account store at registration time. The router references it but
// never assigns it.
type UserID int64

// GroupID identifies a named, persisted collection of users.
type GroupID int64

// MessageID identifies a recorded direct message. It is assigned by
// the message store before fan-out so that offline recipients can
// later fetch history under the same id.
type MessageID int64
