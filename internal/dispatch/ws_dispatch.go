package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrNoSession = errors.New("no ws session")

const writeWait = 5 * time.Second

// WSSession is one connected rider. Writes are serialised because gorilla
// connections allow a single concurrent writer.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// envelope is what riders receive over the socket.
type envelope struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// WSRegistry holds the live session of each connected rider.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

// Add replaces any earlier session for riderID.
func (r *WSRegistry) Add(riderID string, conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	r.sessions[riderID] = s
	r.mu.Unlock()
	return s
}

// Remove drops riderID only if s is still its current session.
func (r *WSRegistry) Remove(riderID string, s *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[riderID]; ok && cur == s {
		delete(r.sessions, riderID)
	}
}

func (r *WSRegistry) Connected(riderID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[riderID]
	return ok
}

func (r *WSRegistry) Send(_ context.Context, to Recipient, msg Message) error {
	r.mu.RLock()
	s, ok := r.sessions[to.RiderID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.WriteJSON(envelope{Type: "notification", Message: msg})
}
