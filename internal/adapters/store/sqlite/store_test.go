package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chatter.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedConversation(t *testing.T, s *Store, participants ...domain.UserID) domain.Conversation {
	t.Helper()
	ctx := context.Background()
	for range participants {
		if _, err := s.CreateUser(ctx, domain.User{Name: "u"}); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}
	c, err := s.CreateConversation(ctx, domain.Conversation{Name: "room", Participants: participants})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return c
}

func TestSQLiteSaveMessageIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, s, 1, 2)

	original := domain.Message{ID: "m-1", Text: "first", SentTime: 10, SenderID: 1, ConversationID: conv.ID}
	if _, err := s.SaveMessage(ctx, original); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	retry := original
	retry.Text = "mutated"
	got, err := s.SaveMessage(ctx, retry)
	if err != nil {
		t.Fatalf("SaveMessage retry: %v", err)
	}
	if got.Text != "first" {
		t.Errorf("retry returned %q, want the original row", got.Text)
	}

	msgs, err := s.MessagesForConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("MessagesForConversation: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("stored %d messages, want 1", len(msgs))
	}
}

func TestSQLiteSaveMessageBumpsLastMessageTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, s, 1)

	for _, m := range []domain.Message{
		{ID: "a", SentTime: 50, SenderID: 1, ConversationID: conv.ID},
		{ID: "b", SentTime: 30, SenderID: 1, ConversationID: conv.ID},
	} {
		if _, err := s.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	got, err := s.Conversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if got.LastMessageTime != 50 {
		t.Errorf("LastMessageTime = %d, want 50", got.LastMessageTime)
	}
}

func TestSQLiteConversationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, s, 1, 2)

	got, err := s.Conversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if got.Name != "room" || len(got.Participants) != 2 {
		t.Errorf("Conversation = %+v", got)
	}

	participants, err := s.Participants(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if len(participants) != 2 || participants[0] != 1 || participants[1] != 2 {
		t.Errorf("Participants = %v, want [1 2]", participants)
	}

	mine, err := s.ConversationsForUser(ctx, 1)
	if err != nil {
		t.Fatalf("ConversationsForUser: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != conv.ID {
		t.Errorf("ConversationsForUser(1) = %v", mine)
	}

	if _, err := s.Conversation(ctx, 404); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Conversation(404) = %v, want ErrNotFound", err)
	}
}

func TestSQLiteUpdateConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	conv := seedConversation(t, s, 1, 2)

	conv.Name = "renamed"
	conv.Participants = []domain.UserID{1}
	if err := s.UpdateConversation(ctx, conv); err != nil {
		t.Fatalf("UpdateConversation: %v", err)
	}

	got, err := s.Conversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if got.Name != "renamed" || len(got.Participants) != 1 {
		t.Errorf("Conversation = %+v", got)
	}

	if err := s.UpdateConversation(ctx, domain.Conversation{ID: 404}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateConversation(404) = %v, want ErrNotFound", err)
	}
}

func TestSQLiteUserRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, domain.User{Name: "alice"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == 0 {
		t.Fatal("CreateUser assigned no id")
	}

	got, err := s.User(ctx, u.ID)
	if err != nil || got.Name != "alice" {
		t.Errorf("User(%d) = %v, %v", u.ID, got, err)
	}
	if _, err := s.User(ctx, 404); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("User(404) = %v, want ErrNotFound", err)
	}
}
