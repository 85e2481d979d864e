package app

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/dkeye/Chatter/internal/wire"
)

type stubStore struct {
	participants    map[domain.ConversationID][]domain.UserID
	participantsErr error

	saved   []domain.Message
	saveErr error
	// canonicalTime overrides SentTime on the stored record so tests can tell
	// the persisted row apart from the inbound payload.
	canonicalTime int64
}

func (s *stubStore) SaveMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	if s.saveErr != nil {
		return domain.Message{}, s.saveErr
	}
	if s.canonicalTime != 0 {
		m.SentTime = s.canonicalTime
	}
	s.saved = append(s.saved, m)
	return m, nil
}

func (s *stubStore) MessagesForConversation(ctx context.Context, id domain.ConversationID) ([]domain.Message, error) {
	return nil, nil
}

func (s *stubStore) CreateConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error) {
	return c, nil
}

func (s *stubStore) Conversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	return domain.Conversation{}, core.ErrNotFound
}

func (s *stubStore) UpdateConversation(ctx context.Context, c domain.Conversation) error {
	return nil
}

func (s *stubStore) ConversationsForUser(ctx context.Context, id domain.UserID) ([]domain.Conversation, error) {
	return nil, nil
}

func (s *stubStore) Participants(ctx context.Context, id domain.ConversationID) ([]domain.UserID, error) {
	if s.participantsErr != nil {
		return nil, s.participantsErr
	}
	p, ok := s.participants[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return p, nil
}

func newTestRelay(store *stubStore, conns map[domain.UserID]*stubConn) *Relay {
	registry := NewRegistry()
	for id, conn := range conns {
		registry.Register(id, conn)
	}
	return NewRelay(registry, store, store)
}

func textFrameBytes(m domain.Message) []byte {
	return wire.EncodeFrame(wire.NewTextFrame(m))
}

func TestRelayTextFansOutCanonicalRecord(t *testing.T) {
	store := &stubStore{
		participants:  map[domain.ConversationID][]domain.UserID{7: {1, 2, 3}},
		canonicalTime: 999,
	}
	sender := &stubConn{}
	peer := &stubConn{}
	// User 3 is a participant but offline.
	relay := newTestRelay(store, map[domain.UserID]*stubConn{1: sender, 2: peer})

	msg := domain.Message{ID: "m-1", Text: "hi", SentTime: 10, SenderID: 1, ConversationID: 7}
	if err := relay.HandleFrame(context.Background(), 1, textFrameBytes(msg)); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d messages, want 1", len(store.saved))
	}
	for name, conn := range map[string]*stubConn{"sender": sender, "peer": peer} {
		frames := conn.sent()
		if len(frames) != 1 {
			t.Fatalf("%s got %d frames, want 1", name, len(frames))
		}
		got, err := wire.DecodeTextMessage(frames[0].Content)
		if err != nil {
			t.Fatalf("%s frame content: %v", name, err)
		}
		if got.SentTime != 999 {
			t.Errorf("%s received SentTime %d, want the stored record's 999", name, got.SentTime)
		}
		if got.ID != "m-1" || got.Text != "hi" {
			t.Errorf("%s received %+v", name, got)
		}
	}
}

func TestRelayTextPersistFailure(t *testing.T) {
	dbErr := errors.New("disk full")
	store := &stubStore{saveErr: dbErr}
	sender := &stubConn{}
	relay := newTestRelay(store, map[domain.UserID]*stubConn{1: sender})

	msg := domain.Message{ID: "m-2", Text: "hi", SenderID: 1, ConversationID: 7}
	err := relay.HandleFrame(context.Background(), 1, textFrameBytes(msg))

	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("HandleFrame error = %v, want *PersistenceError", err)
	}
	if perr.MessageID != "m-2" {
		t.Errorf("PersistenceError.MessageID = %q, want m-2", perr.MessageID)
	}
	if !errors.Is(err, dbErr) {
		t.Error("PersistenceError must wrap the store error")
	}
	if len(sender.sent()) != 0 {
		t.Error("no frames may be delivered when persistence fails")
	}
}

func TestRelayTextParticipantLookupFailure(t *testing.T) {
	store := &stubStore{
		participants:    map[domain.ConversationID][]domain.UserID{},
		participantsErr: errors.New("db gone"),
	}
	relay := newTestRelay(store, nil)

	msg := domain.Message{ID: "m-3", SenderID: 1, ConversationID: 7}
	err := relay.HandleFrame(context.Background(), 1, textFrameBytes(msg))

	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("HandleFrame error = %v, want *PersistenceError", err)
	}
}

func TestRelayCallForwardsVerbatimExceptCaller(t *testing.T) {
	store := &stubStore{
		participants: map[domain.ConversationID][]domain.UserID{7: {1, 2}},
	}
	caller := &stubConn{}
	callee := &stubConn{}
	relay := newTestRelay(store, map[domain.UserID]*stubConn{1: caller, 2: callee})

	frame := wire.NewCallFrame(wire.CallMessage{UserID: 1, ConversationID: 7, Kind: wire.Calling})
	if err := relay.HandleFrame(context.Background(), 1, wire.EncodeFrame(frame)); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}

	if len(caller.sent()) != 0 {
		t.Error("call frame echoed back to the caller")
	}
	frames := callee.sent()
	if len(frames) != 1 {
		t.Fatalf("callee got %d frames, want 1", len(frames))
	}
	if frames[0] != frame {
		t.Errorf("callee got %+v, want the original frame untouched", frames[0])
	}
	if len(store.saved) != 0 {
		t.Error("call frames must not be persisted")
	}
}

func TestRelayUndecodableFrameDropped(t *testing.T) {
	store := &stubStore{participants: map[domain.ConversationID][]domain.UserID{}}
	conn := &stubConn{}
	relay := newTestRelay(store, map[domain.UserID]*stubConn{1: conn})

	if err := relay.HandleFrame(context.Background(), 1, []byte(`{"type":99,"content":""}`)); err != nil {
		t.Fatalf("undecodable frame must be dropped, got %v", err)
	}
	if err := relay.HandleFrame(context.Background(), 1, []byte(`not json`)); err != nil {
		t.Fatalf("malformed frame must be dropped, got %v", err)
	}
	if len(conn.sent()) != 0 || len(store.saved) != 0 {
		t.Error("dropped frames must have no side effects")
	}
}

func TestRelayPresenceIsNoop(t *testing.T) {
	store := &stubStore{participants: map[domain.ConversationID][]domain.UserID{}}
	conn := &stubConn{}
	relay := newTestRelay(store, map[domain.UserID]*stubConn{1: conn})

	data := wire.EncodeFrame(wire.Frame{Type: wire.FramePresence, Content: "whatever"})
	if err := relay.HandleFrame(context.Background(), 1, data); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}
	if len(conn.sent()) != 0 || len(store.saved) != 0 {
		t.Error("presence frames must have no side effects")
	}
}

func TestRelayBackpressuredRecipientSkipped(t *testing.T) {
	store := &stubStore{
		participants:  map[domain.ConversationID][]domain.UserID{7: {1, 2}},
		canonicalTime: 5,
	}
	stuck := &stubConn{err: core.ErrBackpressure}
	healthy := &stubConn{}
	relay := newTestRelay(store, map[domain.UserID]*stubConn{1: stuck, 2: healthy})

	msg := domain.Message{ID: "m-4", Text: "hi", SenderID: 1, ConversationID: 7}
	if err := relay.HandleFrame(context.Background(), 1, textFrameBytes(msg)); err != nil {
		t.Fatalf("a backpressured recipient must not fail the fan-out: %v", err)
	}
	if len(healthy.sent()) != 1 {
		t.Error("healthy recipient missed the message")
	}
}
