// Package speech provides one-shot speech recognition sessions. A Recognizer
// admits a single active session; each session yields its events on a channel
// that is closed after EventEnded.
package speech

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrSessionActive = errors.New("a recognition session is already active")
	ErrSessionClosed = errors.New("recognition session is stopped")
)

type EventKind int

const (
	EventStarted EventKind = iota
	EventResult
	EventError
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind       EventKind
	Transcript string
	Reason     string
}

// Transcriber turns a complete audio clip into text. filename carries the
// container format by extension.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

type Recognizer struct {
	tr     Transcriber
	logger zerolog.Logger

	mu     sync.Mutex
	active *Session
}

// NewRecognizer returns nil when tr is nil: callers treat a nil Recognizer as
// "speech input not available".
func NewRecognizer(tr Transcriber, logger zerolog.Logger) *Recognizer {
	if tr == nil {
		return nil
	}
	return &Recognizer{tr: tr, logger: logger}
}

// Available reports whether r can start sessions.
func Available(r *Recognizer) bool { return r != nil }

// Start opens a capture session. filename names the audio container
// ("speech.webm", "clip.wav").
func (r *Recognizer) Start(ctx context.Context, filename string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, ErrSessionActive
	}
	s := &Session{
		r:        r,
		ctx:      ctx,
		filename: filename,
		events:   make(chan Event, 4),
	}
	r.active = s
	s.events <- Event{Kind: EventStarted}
	return s, nil
}

// Active reports whether a session is currently capturing or transcribing.
func (r *Recognizer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func (r *Recognizer) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == s {
		r.active = nil
	}
}

type Session struct {
	r        *Recognizer
	ctx      context.Context
	filename string
	events   chan Event

	mu      sync.Mutex
	audio   bytes.Buffer
	stopped bool
}

// Write appends captured audio.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, ErrSessionClosed
	}
	return s.audio.Write(p)
}

// Stop ends capture and starts recognition in the background. Calling it more
// than once has no effect.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	audio := bytes.NewReader(s.audio.Bytes())
	s.mu.Unlock()

	go s.recognize(audio)
}

func (s *Session) recognize(audio io.Reader) {
	defer func() {
		s.r.release(s)
		s.events <- Event{Kind: EventEnded}
		close(s.events)
	}()

	text, err := s.r.tr.Transcribe(s.ctx, audio, s.filename)
	if err != nil {
		s.r.logger.Error().Err(err).Msg("speech recognition error")
		s.events <- Event{Kind: EventError, Reason: err.Error()}
		return
	}
	s.events <- Event{Kind: EventResult, Transcript: text}
}

func (s *Session) Events() <-chan Event { return s.events }

// Await drains the session's events and returns the transcript, or an error
// carrying the recognizer's reason.
func (s *Session) Await(ctx context.Context) (string, error) {
	var (
		transcript string
		failure    error
	)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-s.events:
			if !ok {
				return transcript, failure
			}
			switch ev.Kind {
			case EventResult:
				transcript = ev.Transcript
			case EventError:
				failure = errors.Errorf("speech recognition failed: %s", ev.Reason)
			}
		}
	}
}
