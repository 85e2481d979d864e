package core

import (
	"context"
	"errors"

	"github.com/dkeye/Chatter/internal/domain"
	"github.com/dkeye/Chatter/internal/wire"
)

// ErrBackpressure is returned by TrySend when the outbound buffer is full.
var ErrBackpressure = errors.New("backpressure")

// ErrNotFound is returned by stores for missing rows.
var ErrNotFound = errors.New("not found")

// SignalConnection is the outbound half of one live connection.
// Owned by the adapter; the adapter must Close() it. TrySend never blocks.
type SignalConnection interface {
	TrySend(wire.Frame) error
	Close()
}

// MediaSession is the capability interface over the media stack. The core
// only carries opaque SDP/ICE strings through it; track management, codecs
// and transport live behind the implementation.
type MediaSession interface {
	// Create allocates the local media session (tracks, transceivers).
	Create() error
	// Offer produces the local SDP offer.
	Offer(ctx context.Context) (string, error)
	// AnswerTo applies a remote offer and produces the local answer.
	AnswerTo(ctx context.Context, offer string) (string, error)
	// HandleAnswer applies the remote answer to the local session.
	HandleAnswer(ctx context.Context, answer string) error
	// HandleIce feeds a remote ICE candidate into the session.
	HandleIce(ctx context.Context, candidate string) error
	// IceCandidates streams locally gathered candidates. Closed on Teardown.
	IceCandidates() <-chan string
	// Teardown releases the session. Safe to call more than once.
	Teardown()
}

// MediaFactory creates one MediaSession per call attempt.
type MediaFactory interface {
	NewSession() (MediaSession, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	User(ctx context.Context, id domain.UserID) (domain.User, error)
}

type ConversationStore interface {
	CreateConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error)
	Conversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)
	UpdateConversation(ctx context.Context, c domain.Conversation) error
	ConversationsForUser(ctx context.Context, id domain.UserID) ([]domain.Conversation, error)
	// Participants returns the user ids in a conversation; the relay fans
	// frames out against this set.
	Participants(ctx context.Context, id domain.ConversationID) ([]domain.UserID, error)
}

type MessageStore interface {
	// SaveMessage persists a message and returns the canonical stored
	// record. The client-minted id is an idempotency key: re-inserting an
	// existing id returns the original row untouched.
	SaveMessage(ctx context.Context, m domain.Message) (domain.Message, error)
	MessagesForConversation(ctx context.Context, id domain.ConversationID) ([]domain.Message, error)
}
