// Package session keeps the live conversations of every front door, keyed by
// session id. Web sessions get random ids; other channels use a stable key
// such as "tg:<chat id>".
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gws-pilot/internal/conversation"
	"gws-pilot/internal/speech"
)

const (
	ChannelWeb      = "web"
	ChannelTelegram = "telegram"
	ChannelCLI      = "cli"
	ChannelMCP      = "mcp"
)

// ChannelOf derives the front door from a session id prefix.
func ChannelOf(id string) string {
	switch {
	case strings.HasPrefix(id, "tg:"):
		return ChannelTelegram
	case strings.HasPrefix(id, "cli:"):
		return ChannelCLI
	case strings.HasPrefix(id, "mcp:"):
		return ChannelMCP
	default:
		return ChannelWeb
	}
}

type Session struct {
	ID         string
	Store      *conversation.Store
	Recognizer *speech.Recognizer
	CreatedAt  time.Time

	lastSeen time.Time
}

// Factory builds the conversation (and optional recognizer) for a new session.
type Factory func(id string) (*conversation.Store, *speech.Recognizer)

type Manager struct {
	factory Factory
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(factory Factory) *Manager {
	return &Manager{
		factory:  factory,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session under a fresh random id.
func (m *Manager) Create() *Session {
	return m.GetOrCreate(uuid.NewString())
}

// Get returns the session and marks it as seen.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.lastSeen = m.now()
	}
	return s, ok
}

func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if s, ok := m.sessions[id]; ok {
		s.lastSeen = now
		return s
	}
	store, rec := m.factory(id)
	s := &Session{ID: id, Store: store, Recognizer: rec, CreatedAt: now, lastSeen: now}
	m.sessions[id] = s
	return s
}

// Reset forgets the session; the next GetOrCreate starts over from the greeting.
func (m *Manager) Reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than maxIdle and returns how many were
// removed. Sessions waiting for a reply, transcribing speech or watched by a
// live subscriber are kept.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxIdle)
	removed := 0
	for id, s := range m.sessions {
		if !s.lastSeen.Before(cutoff) {
			continue
		}
		if s.Store.Busy() || s.Store.Watched() || (s.Recognizer != nil && s.Recognizer.Active()) {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	return removed
}
