package domain

import "time"

// FrameKind discriminates inbound wire frames.
type FrameKind string

const (
	KindSendMessage FrameKind = "SEND_MESSAGE"
	KindCreateGroup FrameKind = "CREATE_GROUP"
	KindJoinGroup   FrameKind = "JOIN_GROUP"
)

// Frame is one inbound request on a live connection. Which fields are
// required depends on Kind; the router drops frames with missing fields.
type Frame struct {
	Kind       FrameKind `json:"type"`
	Receiver   string    `json:"receiver,omitempty"`
	Message    string    `json:"message,omitempty"`
	GroupName  string    `json:"groupname,omitempty"`
	GroupToken GroupID   `json:"groupToken,omitempty"`
}

// Envelope is a delivered direct message. It is built once per request
// and never mutated after dispatch begins.
type Envelope struct {
	ID       MessageID `json:"id"`
	Type     string    `json:"type"`
	Sender   UserID    `json:"sender"`
	Receiver UserID    `json:"receiver"`
	Message  string    `json:"message"`
	Time     int64     `json:"time"`
}

const EnvelopeTypePrivate = "private"

// NewPrivateEnvelope builds the outbound frame for a recorded direct message.
func NewPrivateEnvelope(id MessageID, sender, receiver UserID, content string, at time.Time) Envelope {
	return Envelope{
		ID:       id,
		Type:     EnvelopeTypePrivate,
		Sender:   sender,
		Receiver: receiver,
		Message:  content,
		Time:     at.Unix(),
	}
}

// Notice is an informational frame sent back to a single peer. It is the
// only user-visible failure shape; protocol errors never leak raw.
type Notice struct {
	Info string `json:"info"`
}
