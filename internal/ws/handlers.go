package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"chatwire/internal/service"
)

// EventHandlers maps inbound named events onto store operations. Every
// mutation follows the same contract: mutate, answer the requester, and on
// success push the refreshed collection to the right audience.
type EventHandlers struct {
	log    *logrus.Logger
	users  service.UserService
	tokens *service.TokenIssuer
	hub    *Hub
}

func NewEventHandlers(log *logrus.Logger, users service.UserService, tokens *service.TokenIssuer, hub *Hub) *EventHandlers {
	return &EventHandlers{
		log:    log,
		users:  users,
		tokens: tokens,
		hub:    hub,
	}
}

func (h *EventHandlers) HandleEvent(ctx context.Context, c *Client, env Envelope) {
	switch env.Event {
	case EventGetUsers:
		h.handleGetUsers(ctx, c)
	case EventAddUser:
		h.handleAddUser(ctx, c, env.Data)
	case EventEditUser:
		h.handleEditUser(ctx, c, env.Data)
	case EventLoginRequest:
		h.handleLogin(ctx, c, env.Data)
	case EventChatMessage:
		h.handleChatMessage(c, env.Data)
	case EventUsername:
		h.handleUsername(c, env.Data)
	default:
		h.log.Warnf("client %s sent unknown event %q", c.ID(), env.Event)
	}
}

// handleGetUsers answers the requester only. A store failure is logged and
// the request dropped without a response; callers get nothing back.
func (h *EventHandlers) handleGetUsers(ctx context.Context, c *Client) {
	users, err := h.users.List(ctx)
	if err != nil {
		h.log.Errorf("get_users for %s: %v", c.ID(), err)
		return
	}
	c.Send(EventUsersData, usersToPayload(users))
}

func (h *EventHandlers) handleAddUser(ctx context.Context, c *Client, data json.RawMessage) {
	var req AddUserRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.Send(EventUserAdded, AckResponse{Success: false, Message: "invalid add_user payload"})
		return
	}

	if _, err := h.users.Add(ctx, req.Email, req.Password, req.Image); err != nil {
		c.Send(EventUserAdded, AckResponse{Success: false, Message: mutationFailureMessage(err, "could not add user")})
		return
	}

	c.Send(EventUserAdded, AckResponse{Success: true, Message: "user added"})
	h.broadcastUsers(ctx)
}

func (h *EventHandlers) handleEditUser(ctx context.Context, c *Client, data json.RawMessage) {
	var req EditUserRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.Send(EventUserEdited, AckResponse{Success: false, Message: "invalid edit_user payload"})
		return
	}

	if _, err := h.users.Edit(ctx, req.OldEmail, req.Email, req.Password, req.Image); err != nil {
		c.Send(EventUserEdited, AckResponse{Success: false, Message: mutationFailureMessage(err, "could not update user")})
		return
	}

	c.Send(EventUserEdited, AckResponse{Success: true, Message: "user updated"})
	h.broadcastUsers(ctx)
}

func (h *EventHandlers) handleLogin(ctx context.Context, c *Client, data json.RawMessage) {
	var req LoginRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.Send(EventLoginResponse, LoginResponse{Success: false, Message: "invalid login_request payload"})
		return
	}

	user, err := h.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			h.log.Errorf("login_request for %s: %v", c.ID(), err)
		}
		c.Send(EventLoginResponse, LoginResponse{Success: false, Message: "invalid email or password"})
		return
	}

	h.hub.AddSession(c.ID(), user.Email)

	token, err := h.tokens.Issue(user.Email)
	if err != nil {
		h.log.Warnf("issue token for %s: %v", user.Email, err)
	}
	c.Send(EventLoginResponse, LoginResponse{
		Success: true,
		Message: fmt.Sprintf("Welcome, %s!", user.Email),
		Token:   token,
	})
}

// handleChatMessage echoes the payload to every connection, the sender
// included.
func (h *EventHandlers) handleChatMessage(c *Client, data json.RawMessage) {
	h.log.Infof("chat message from %s", c.ID())
	h.hub.Broadcast(EventChatMessage, data)
}

func (h *EventHandlers) handleUsername(c *Client, data json.RawMessage) {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		h.log.Warnf("client %s sent invalid username payload: %v", c.ID(), err)
		return
	}
	h.log.Infof("%s connected with id %s", name, c.ID())
}

// broadcastUsers re-reads the collection after a successful mutation and
// pushes it to every connection.
func (h *EventHandlers) broadcastUsers(ctx context.Context) {
	users, err := h.users.List(ctx)
	if err != nil {
		h.log.Errorf("reload users for broadcast: %v", err)
		return
	}
	h.hub.Broadcast(EventUsersData, usersToPayload(users))
}

// mutationFailureMessage maps expected negative results to their messages
// and everything else to a generic failure, keeping store details away
// from clients.
func mutationFailureMessage(err error, generic string) string {
	switch {
	case errors.Is(err, service.ErrUserAlreadyExists):
		return "email already exists"
	case errors.Is(err, service.ErrUserNotFound):
		return "user not found"
	default:
		return generic
	}
}
