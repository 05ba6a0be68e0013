package ws

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chatwire/internal/domain"
)

// Hub owns every live websocket connection and the presence roster. All
// fan-out goes through it: a send to one slow or dead client never blocks
// delivery to the others.
type Hub struct {
	log *logrus.Logger

	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[*Client]bool

	// rosterMu orders roster mutations against the broadcasts they
	// trigger, so every userListUpdate reflects the state strictly after
	// the mutation that caused it.
	rosterMu sync.Mutex
	presence *Registry

	events *EventHandlers

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(log *logrus.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		presence:   NewRegistry(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Bind attaches the event handlers that serve inbound envelopes. Must be
// called before the first client registers.
func (h *Hub) Bind(events *EventHandlers) {
	h.events = events
}

func (h *Hub) Presence() *Registry {
	return h.presence
}

// Register hands a freshly upgraded connection to the hub, which starts
// its pumps.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Run is the hub's main loop. It owns the clients map and processes
// registration, disconnects, and shutdown. Call it in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Infof("client %s connected (%d online)", c.ID(), count)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				c.writePump()
			}()
			go func() {
				defer h.wg.Done()
				c.readPump()
			}()

		case c := <-h.unregister:
			h.dropClient(c)
			// The roster broadcast fires even when the connection never
			// authenticated; remaining clients just see an unchanged list.
			h.RemoveSessions(c.ID())
		}
	}
}

// AddSession records an authenticated connection and broadcasts the
// refreshed roster to everyone.
func (h *Hub) AddSession(connectionID, email string) domain.Session {
	h.rosterMu.Lock()
	defer h.rosterMu.Unlock()

	session := h.presence.Add(connectionID, email)
	h.broadcastRoster()
	return session
}

// RemoveSessions drops the connection's sessions and broadcasts the
// refreshed roster to everyone.
func (h *Hub) RemoveSessions(connectionID string) {
	h.rosterMu.Lock()
	defer h.rosterMu.Unlock()

	h.presence.Remove(connectionID)
	h.broadcastRoster()
}

func (h *Hub) broadcastRoster() {
	roster := sessionsToPayload(h.presence.Snapshot())
	h.Broadcast(EventUserListUpdate, roster)
}

// Broadcast sends a named event to every connected client.
func (h *Hub) Broadcast(event string, data any) {
	msg, err := encodeEvent(event, data)
	if err != nil {
		h.log.Warnf("broadcast %s: %v", event, err)
		return
	}

	var stalled []*Client
	for _, c := range h.clientList() {
		if !c.enqueue(msg) {
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		h.log.Warnf("client %s send buffer full, dropping connection", c.ID())
		h.dropClient(c)
		c.close()
	}
}

func (h *Hub) clientList() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// dropClient removes the client from the map and closes its send channel.
// Safe to call twice for the same client.
func (h *Hub) dropClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.closeSend()
		h.log.Infof("client %s disconnected (%d online)", c.ID(), count)
	}
}

func (h *Hub) closeAllClients() {
	for _, c := range h.clientList() {
		h.dropClient(c)
		c.close()
	}
}

// Shutdown stops the hub, closes every connection, and waits for the pump
// goroutines to finish or the timeout to expire.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
