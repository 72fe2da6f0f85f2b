package entity

import "time"

const (
	UserCreated = "user.created"
	UserUpdated = "user.updated"
	UserDeleted = "user.deleted"
)

// UserEvent is the JSON payload published on the user events queue.
// It never carries the password hash.
type UserEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewUserEvent(typ string, u *User) UserEvent {
	return UserEvent{
		Type:       typ,
		UserID:     u.ID,
		Name:       u.Name,
		Email:      u.Email,
		OccurredAt: time.Now().UTC(),
	}
}
