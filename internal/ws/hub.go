// Package ws pushes attendance notifications to connected students over
// websockets. Each student has a logical channel (all of their open
// connections) plus one global broadcast topic. Delivery is push-only with
// no backlog: a disconnected client misses whatever happened while away.
package ws

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer bounds each client's outbound queue; a slow consumer that
	// fills it gets disconnected rather than stalling the hub.
	sendBuffer = 64
)

// Hub tracks connected clients keyed by student ID. A student may hold
// several connections (multiple devices); every one receives that student's
// events.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	logger  *zap.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]map[*client]struct{}), logger: logger}
}

// SendToStudent queues the payload on every connection the student holds.
// Returns false when the student has no connected client. Never blocks: a
// client whose buffer is full is dropped.
func (h *Hub) SendToStudent(studentID string, payload []byte) bool {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients[studentID]))
	for c := range h.clients[studentID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := false
	for _, c := range conns {
		if c.trySend(payload) {
			delivered = true
		} else {
			h.drop(c)
		}
	}
	return delivered
}

// Broadcast queues the payload on every connected client.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	conns := make([]*client, 0)
	for _, set := range h.clients {
		for c := range set {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if !c.trySend(payload) {
			h.drop(c)
		}
	}
}

// ConnectedStudents reports how many students currently hold at least one
// connection.
func (h *Hub) ConnectedStudents() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.studentID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.studentID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("ws client connected", zap.String("student_id", c.studentID))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.studentID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.studentID)
		}
	}
	h.mu.Unlock()
}

// drop disconnects a client that can no longer keep up.
func (h *Hub) drop(c *client) {
	h.unregister(c)
	c.close()
	h.logger.Warn("ws client dropped, send buffer full", zap.String("student_id", c.studentID))
}
