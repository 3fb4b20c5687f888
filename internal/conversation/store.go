// Package conversation holds the message log of one chat and the busy flag
// that admits at most one outstanding reply at a time.
package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrEmptyInput means the submission trimmed to nothing; no state changed.
	ErrEmptyInput = errors.New("empty input")
	// ErrBusy means a reply is still outstanding; the submission was dropped.
	ErrBusy = errors.New("conversation is busy")
)

// Fetcher produces the bot reply for a history that ends with the user's turn.
type Fetcher interface {
	Fetch(ctx context.Context, history []Message) Outcome
}

type FetcherFunc func(ctx context.Context, history []Message) Outcome

func (f FetcherFunc) Fetch(ctx context.Context, history []Message) Outcome {
	return f(ctx, history)
}

type Option func(*Store)

func WithGreeting(text string) Option {
	return func(s *Store) {
		if strings.TrimSpace(text) != "" {
			s.greeting = text
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithExchangeHook registers f to be called after every settled exchange.
func WithExchangeHook(f func(Exchange)) Option {
	return func(s *Store) { s.onExchange = f }
}

type Store struct {
	fetcher    Fetcher
	greeting   string
	logger     zerolog.Logger
	onExchange func(Exchange)
	now        func() time.Time

	mu   sync.Mutex
	log  []Message
	busy bool
	subs map[chan Snapshot]struct{}
}

// NewStore creates a conversation seeded with the bot greeting.
func NewStore(fetcher Fetcher, opts ...Option) *Store {
	s := &Store{
		fetcher:  fetcher,
		greeting: DefaultGreeting,
		logger:   zerolog.Nop(),
		now:      time.Now,
		subs:     make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = []Message{{Text: s.greeting, Sender: SenderBot}}
	return s
}

// SubmitUserText appends the trimmed text as a user message, fetches the reply
// and appends it (or the fallback). It returns the appended bot message.
// Whitespace-only input yields ErrEmptyInput and a submission made while a
// reply is outstanding yields ErrBusy; neither changes the log.
func (s *Store) SubmitUserText(ctx context.Context, raw string) (Message, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Message{}, ErrEmptyInput
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Message{}, ErrBusy
	}
	s.log = append(s.log, Message{Text: text, Sender: SenderUser})
	s.busy = true
	history := s.copyLocked()
	s.notifyLocked()
	s.mu.Unlock()

	started := s.now()
	out := s.fetch(ctx, history)

	var reply Message
	if out.OK() {
		reply = s.onFetchSucceeded(out.Text)
	} else {
		s.logger.Warn().
			Err(out.Err).
			Str("outcome", out.Kind.String()).
			Msg("bot reply unavailable, sending fallback")
		reply = s.onFetchFailed()
	}

	if s.onExchange != nil {
		s.onExchange(Exchange{
			UserText:  text,
			BotText:   reply.Text,
			Outcome:   out.Kind,
			StartedAt: started,
			Latency:   s.now().Sub(started),
		})
	}
	return reply, nil
}

// fetch always yields an Outcome so the busy flag is cleared on every path.
func (s *Store) fetch(ctx context.Context, history []Message) (out Outcome) {
	if s.fetcher == nil {
		return TransportError(errors.New("no fetcher configured"))
	}
	defer func() {
		if r := recover(); r != nil {
			out = TransportError(errors.Errorf("fetcher panic: %v", r))
		}
	}()
	return s.fetcher.Fetch(ctx, history)
}

func (s *Store) onFetchSucceeded(text string) Message {
	return s.appendBot(text)
}

func (s *Store) onFetchFailed() Message {
	return s.appendBot(FallbackText)
}

func (s *Store) appendBot(text string) Message {
	msg := Message{Text: text, Sender: SenderBot}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, msg)
	s.busy = false
	s.notifyLocked()
	return msg
}

// Messages returns a copy of the authoritative log.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Snapshot returns the log plus a pending placeholder while a reply is outstanding.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Watched reports whether any subscriber is currently attached.
func (s *Store) Watched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs) > 0
}

// Subscribe returns a feed of snapshots, starting with the current one. The
// feed keeps only the latest snapshot for slow readers. Call cancel to release it.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

func (s *Store) copyLocked() []Message {
	out := make([]Message, len(s.log))
	copy(out, s.log)
	return out
}

func (s *Store) snapshotLocked() Snapshot {
	msgs := make([]Message, len(s.log), len(s.log)+1)
	copy(msgs, s.log)
	if s.busy {
		msgs = append(msgs, Message{Sender: SenderBot, Pending: true})
	}
	return Snapshot{Messages: msgs, Busy: s.busy}
}

// notifyLocked replaces whatever a subscriber has not read yet with the
// current snapshot. Sends cannot block: only this method sends, under s.mu.
func (s *Store) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
