package domain

// UserID is the numeric identity a client connects under (`/ws/{userId}`).
type UserID int64

type User struct {
	ID   UserID `json:"id"`
	Name string `json:"userName"`
}
