package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/dkeye/Chatter/internal/wire"
)

// PersistenceError marks a chat message that failed to persist. It is the
// only error class surfaced back through HandleFrame; the sender keeps the
// message id and can retry.
type PersistenceError struct {
	MessageID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist message %s: %v", e.MessageID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Relay decodes inbound frames, resolves recipients through the registry and
// forwards payloads. It never interprets call semantics; all call state lives
// on the clients, which keeps the server stateless.
type Relay struct {
	registry      *Registry
	messages      core.MessageStore
	conversations core.ConversationStore
}

func NewRelay(registry *Registry, messages core.MessageStore, conversations core.ConversationStore) *Relay {
	return &Relay{
		registry:      registry,
		messages:      messages,
		conversations: conversations,
	}
}

// HandleFrame processes one raw frame from senderID's connection. Decode
// failures drop the frame and keep the connection up. The returned error is
// always a *PersistenceError when non-nil.
func (r *Relay) HandleFrame(ctx context.Context, senderID domain.UserID, data []byte) error {
	frame, err := wire.DecodeFrame(data)
	if err != nil {
		log.Warn().Str("module", "app.relay").Int64("sender", int64(senderID)).Err(err).Msg("dropping undecodable frame")
		return nil
	}

	switch frame.Type {
	case wire.FrameText:
		return r.handleText(ctx, senderID, frame.Content)
	case wire.FrameCall:
		r.handleCall(ctx, senderID, frame)
	case wire.FramePresence:
		// Reserved frame type; acknowledged and ignored.
		log.Debug().Str("module", "app.relay").Int64("sender", int64(senderID)).Msg("presence frame ignored")
	}
	return nil
}

// handleText persists the chat message and fans the canonical stored record
// out to every conversation participant, the sender included (its delivery
// doubles as the send acknowledgment).
func (r *Relay) handleText(ctx context.Context, senderID domain.UserID, content string) error {
	msg, err := wire.DecodeTextMessage(content)
	if err != nil {
		log.Warn().Str("module", "app.relay").Int64("sender", int64(senderID)).Err(err).Msg("dropping undecodable text message")
		return nil
	}

	saved, err := r.messages.SaveMessage(ctx, msg)
	if err != nil {
		return &PersistenceError{MessageID: msg.ID, Err: err}
	}

	participants, err := r.conversations.Participants(ctx, saved.ConversationID)
	if err != nil {
		return &PersistenceError{MessageID: msg.ID, Err: err}
	}

	frame := wire.NewTextFrame(saved)
	for _, userID := range participants {
		r.forward(userID, frame)
	}
	return nil
}

// handleCall forwards the original frame unmodified to every participant
// except the caller. Kind and sdp are decoded for validity only; the relay is
// a dumb pipe for call semantics.
func (r *Relay) handleCall(ctx context.Context, senderID domain.UserID, frame wire.Frame) {
	cm, err := wire.DecodeCallMessage(frame.Content)
	if err != nil {
		log.Warn().Str("module", "app.relay").Int64("sender", int64(senderID)).Err(err).Msg("dropping undecodable call message")
		return
	}

	participants, err := r.conversations.Participants(ctx, cm.ConversationID)
	if err != nil {
		log.Error().Str("module", "app.relay").Int64("conversation", int64(cm.ConversationID)).Err(err).Msg("participant lookup failed, call frame dropped")
		return
	}

	for _, userID := range participants {
		if userID == cm.UserID {
			continue
		}
		r.forward(userID, frame)
	}
}

// forward delivers best-effort: an offline recipient is skipped silently, a
// backpressured one is skipped with a log. Neither fails the overall fan-out.
func (r *Relay) forward(userID domain.UserID, frame wire.Frame) {
	conn, ok := r.registry.Resolve(userID)
	if !ok {
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Str("module", "app.relay").Int64("user", int64(userID)).Err(err).Msg("frame not delivered")
	}
}
