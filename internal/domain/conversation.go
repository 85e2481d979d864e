package domain

type ConversationID int64

// Conversation is a two-party chat scope. Calls are scoped to exactly one
// conversation; the participant set lives in the conversation store.
type Conversation struct {
	ID              ConversationID `json:"id"`
	Name            string         `json:"name"`
	LastMessageTime int64          `json:"lastMessageTime"`
	Participants    []UserID       `json:"users"`
}
