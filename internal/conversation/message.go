package conversation

import "time"

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

const (
	DefaultGreeting = "Hello Solver! I can assist you with any questions about Google Workspace. Ask me anything!"
	FallbackText    = "Sorry, I'm having trouble connecting. Please try again."
)

// Message is one entry of the conversation log. Pending marks the display-only
// placeholder for a reply that has not arrived yet; it never appears in the log.
type Message struct {
	Text    string `json:"text"`
	Sender  Sender `json:"sender"`
	Pending bool   `json:"pending,omitempty"`
}

// Snapshot is the renderable state of a conversation.
type Snapshot struct {
	Messages []Message `json:"messages"`
	Busy     bool      `json:"busy"`
}

// Exchange describes one settled user/bot round trip.
type Exchange struct {
	UserText  string
	BotText   string
	Outcome   OutcomeKind
	StartedAt time.Time
	Latency   time.Duration
}
