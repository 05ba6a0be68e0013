package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"chatwire/internal/domain"
)

// Client → server events.
const (
	EventGetUsers     = "get_users"
	EventAddUser      = "add_user"
	EventEditUser     = "edit_user"
	EventLoginRequest = "login_request"
	EventChatMessage  = "chat message"
	EventUsername     = "username"
)

// Server → client events.
const (
	EventUsersData      = "users_data"
	EventUserAdded      = "user_added"
	EventUserEdited     = "user_edited"
	EventLoginResponse  = "login_response"
	EventUserListUpdate = "userListUpdate"
)

// Envelope is the JSON frame exchanged in both directions: a named event
// plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type AddUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Image    string `json:"image,omitempty"`
}

type EditUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Image    string `json:"image,omitempty"`
	OldEmail string `json:"oldEmail"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AckResponse answers add_user and edit_user.
type AckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// UserPayload mirrors a users table row. Password carries the stored hash.
type UserPayload struct {
	ID       int64   `json:"id"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Img      *string `json:"img"`
}

// SessionPayload is one roster entry in a userListUpdate broadcast.
type SessionPayload struct {
	ConnectionID string `json:"connectionId"`
	Email        string `json:"email"`
	LoginAt      string `json:"loginAt"`
}

func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", event, err)
	}
	return msg, nil
}

func usersToPayload(users []domain.User) []UserPayload {
	out := make([]UserPayload, len(users))
	for i, user := range users {
		out[i] = UserPayload{
			ID:       user.ID,
			Email:    user.Email,
			Password: user.PasswordHash,
			Img:      user.Image,
		}
	}
	return out
}

func sessionsToPayload(sessions []domain.Session) []SessionPayload {
	out := make([]SessionPayload, len(sessions))
	for i, session := range sessions {
		out[i] = SessionPayload{
			ConnectionID: session.ConnectionID,
			Email:        session.Email,
			LoginAt:      session.LoginAt.Format(time.RFC3339),
		}
	}
	return out
}
