// Package memory holds the in-process store used in dev mode and tests.
package memory

import (
	"context"
	"sync"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

// Store implements core.UserStore, core.ConversationStore and
// core.MessageStore over plain maps.
type Store struct {
	mu sync.RWMutex

	users      map[domain.UserID]domain.User
	nextUserID int64

	conversations map[domain.ConversationID]domain.Conversation
	nextConvID    int64

	messages map[string]domain.Message
	order    map[domain.ConversationID][]string
}

func New() *Store {
	return &Store{
		users:         make(map[domain.UserID]domain.User),
		conversations: make(map[domain.ConversationID]domain.Conversation),
		messages:      make(map[string]domain.Message),
		order:         make(map[domain.ConversationID][]string),
	}
}

func (s *Store) SaveMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The client-minted id is the idempotency key: a duplicate insert
	// returns the original row untouched.
	if existing, ok := s.messages[m.ID]; ok {
		return existing, nil
	}
	conv, ok := s.conversations[m.ConversationID]
	if !ok {
		return domain.Message{}, core.ErrNotFound
	}
	s.messages[m.ID] = m
	s.order[m.ConversationID] = append(s.order[m.ConversationID], m.ID)

	if m.SentTime > conv.LastMessageTime {
		conv.LastMessageTime = m.SentTime
		s.conversations[m.ConversationID] = conv
	}
	return m, nil
}

func (s *Store) MessagesForConversation(ctx context.Context, id domain.ConversationID) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[id]; !ok {
		return nil, core.ErrNotFound
	}
	out := make([]domain.Message, 0, len(s.order[id]))
	for _, msgID := range s.order[id] {
		out = append(out, s.messages[msgID])
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		s.nextUserID++
		u.ID = domain.UserID(s.nextUserID)
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) User(ctx context.Context, id domain.UserID) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) CreateConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.nextConvID++
		c.ID = domain.ConversationID(s.nextConvID)
	}
	s.conversations[c.ID] = c
	return c, nil
}

func (s *Store) Conversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return domain.Conversation{}, core.ErrNotFound
	}
	return c, nil
}

func (s *Store) UpdateConversation(ctx context.Context, c domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.ID]; !ok {
		return core.ErrNotFound
	}
	s.conversations[c.ID] = c
	return nil
}

func (s *Store) ConversationsForUser(ctx context.Context, id domain.UserID) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Conversation
	for _, c := range s.conversations {
		for _, p := range c.Participants {
			if p == id {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (s *Store) Participants(ctx context.Context, id domain.ConversationID) ([]domain.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := make([]domain.UserID, len(c.Participants))
	copy(out, c.Participants)
	return out, nil
}
