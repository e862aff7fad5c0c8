package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"
)

// Router turns one inbound frame into zero or more registry sends.
// It holds no per-request state: every dispatch is a pure function of
// (sender identity, frame) plus the external stores, which are hit
// fresh on every request. Membership in particular is never cached;
// a stale answer would leak messages to removed members.
type Router struct {
	log      *slog.Logger
	users    repositories.IUserRepository
	groups   repositories.IGroupRepository
	messages repositories.IMessageRepository
	registry contract.IRegistry
}

func NewRouter(log *slog.Logger, users repositories.IUserRepository,
	groups repositories.IGroupRepository, messages repositories.IMessageRepository,
	registry contract.IRegistry) *Router {
	return &Router{
		log:      log,
		users:    users,
		groups:   groups,
		messages: messages,
		registry: registry,
	}
}

// Dispatch parses and routes one raw frame from an authenticated
// connection. Malformed frames are logged and dropped without any
// outbound frame; they never terminate the connection. The returned
// error is non-nil only for persistence failures, which concern this
// single request - the connection stays active so the peer can retry.
func (r *Router) Dispatch(ctx context.Context, sender domain.UserID, raw []byte) error {
	var frame domain.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.log.Warn("Dropping unparseable frame", "sender_id", sender, "error", err)
		return nil
	}

	switch frame.Kind {
	case domain.KindSendMessage:
		return r.sendMessage(ctx, sender, frame)
	case domain.KindCreateGroup:
		return r.createGroup(ctx, sender, frame)
	case domain.KindJoinGroup:
		return r.joinGroup(ctx, sender, frame)
	default:
		r.log.Warn("Dropping frame of unknown kind", "sender_id", sender, "kind", frame.Kind)
		return nil
	}
}

// sendMessage resolves the receiver, records the message, then fans it
// out. Persistence comes first so an offline receiver can still fetch
// the message later under the id the envelope carries. The sender gets
// an echo so all of their own connections stay in sync.
func (r *Router) sendMessage(_ context.Context, sender domain.UserID, frame domain.Frame) error {
	if frame.Receiver == "" || frame.Message == "" {
		r.log.Warn("Dropping SEND_MESSAGE with missing fields", "sender_id", sender)
		return nil
	}

	target, err := r.users.GetUserByName(frame.Receiver)
	if stderrors.Is(err, errors.ErrNotFound) {
		r.notify(sender, fmt.Sprintf("user %q does not exist", frame.Receiver))
		return nil
	}
	if err != nil {
		r.notify(sender, "message could not be delivered")
		return fmt.Errorf("%w: resolving receiver: %v", errors.ErrStorageFailure, err)
	}

	now := time.Now().UTC()
	receiver := domain.UserID(target.ID)
	id, err := r.messages.RecordDirectMessage(sender, receiver, frame.Message, now)
	if err != nil {
		r.notify(sender, "message could not be stored")
		return fmt.Errorf("%w: recording message: %v", errors.ErrStorageFailure, err)
	}

	envelope := domain.NewPrivateEnvelope(id, sender, receiver, frame.Message, now)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	r.registry.SendTo(receiver, payload)
	if receiver != sender {
		r.registry.SendTo(sender, payload)
	}
	return nil
}

// createGroup validates the name, creates the record, and adds the
// requester as first member.
func (r *Router) createGroup(_ context.Context, sender domain.UserID, frame domain.Frame) error {
	if frame.GroupName == "" {
		r.log.Warn("Dropping CREATE_GROUP with missing fields", "sender_id", sender)
		return nil
	}
	if err := auth.ValidateGroupName(frame.GroupName); err != nil {
		r.notify(sender, fmt.Sprintf("group name %q is invalid", frame.GroupName))
		return nil
	}

	groupID, err := r.groups.CreateGroup(frame.GroupName, sender)
	if err != nil {
		r.notify(sender, "group could not be created")
		return fmt.Errorf("%w: creating group: %v", errors.ErrStorageFailure, err)
	}
	if err := r.groups.AddMember(groupID, sender); err != nil {
		r.notify(sender, "group could not be created")
		return fmt.Errorf("%w: adding creator to group: %v", errors.ErrStorageFailure, err)
	}

	r.notify(sender, fmt.Sprintf("group %q created with id %d", frame.GroupName, groupID))
	return nil
}

// joinGroup is idempotent from the caller's perspective: a second join
// answers "already a member" without touching storage again.
func (r *Router) joinGroup(_ context.Context, sender domain.UserID, frame domain.Frame) error {
	if frame.GroupToken == 0 {
		r.log.Warn("Dropping JOIN_GROUP with missing fields", "sender_id", sender)
		return nil
	}

	member, err := r.groups.IsMember(frame.GroupToken, sender)
	if err != nil {
		r.notify(sender, "group could not be joined")
		return fmt.Errorf("%w: checking membership: %v", errors.ErrStorageFailure, err)
	}
	if member {
		r.notify(sender, fmt.Sprintf("already a member of group %d", frame.GroupToken))
		return nil
	}

	err = r.groups.AddMember(frame.GroupToken, sender)
	// Two joins can race past the membership read; the storage layer
	// reports the duplicate and it collapses into the same notice.
	if stderrors.Is(err, errors.ErrAlreadyMember) {
		r.notify(sender, fmt.Sprintf("already a member of group %d", frame.GroupToken))
		return nil
	}
	if stderrors.Is(err, errors.ErrNotFound) {
		r.notify(sender, fmt.Sprintf("group %d does not exist", frame.GroupToken))
		return nil
	}
	if err != nil {
		r.notify(sender, "group could not be joined")
		return fmt.Errorf("%w: adding member: %v", errors.ErrStorageFailure, err)
	}

	r.notify(sender, fmt.Sprintf("joined group %d", frame.GroupToken))
	return nil
}

// notify sends an informational notice to every live connection of one
// user. Best effort; an offline user simply misses the notice.
func (r *Router) notify(user domain.UserID, info string) {
	payload, err := json.Marshal(domain.Notice{Info: info})
	if err != nil {
		r.log.Error("Marshalling notice failed", "error", err)
		return
	}
	r.registry.SendTo(user, payload)
}
