package storage

import "time"

// Event is one settled exchange: the user's message and the bot reply that
// answered it, fallback included. Events are appended in chronological order
// and form an audit trail; they are never loaded back into a conversation.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"session_id"`
	Channel     string    `json:"channel"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	Outcome     string    `json:"outcome"`
	LatencyMS   int64     `json:"latency_ms"`
}

// Recorder abstracts persistence of exchange events.
// LoadInteractions should return events in chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
