package domain

import "github.com/google/uuid"

// Message is a chat message. ID is minted on the sending client before the
// first transmission so the store can treat it as an idempotency key on
// insert; retries and duplicates collapse onto the same row.
type Message struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	SentTime       int64          `json:"sentTime"`
	SenderID       UserID         `json:"senderId"`
	ConversationID ConversationID `json:"conversationId"`
}

func NewMessageID() string {
	return uuid.NewString()
}
