// Package fetcher turns a conversation history into a completion request and
// classifies the answer into a conversation.Outcome.
package fetcher

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gws-pilot/internal/conversation"
	"gws-pilot/internal/llm"
)

const (
	DefaultPersona = "You are a helpful and friendly expert on Google Workspace. " +
		"Answer questions about Gmail, Calendar, Drive, Docs, Sheets, Slides and Meet. " +
		"Keep answers practical and concise, and use short numbered steps when explaining how to do something."
	Acknowledgement = "Okay, I understand. I'm ready to help."
)

type Option func(*Fetcher)

func WithPersona(text string) Option {
	return func(f *Fetcher) {
		if strings.TrimSpace(text) != "" {
			f.persona = text
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

type Fetcher struct {
	client  llm.Client
	persona string
	logger  zerolog.Logger
}

func New(client llm.Client, opts ...Option) *Fetcher {
	f := &Fetcher{client: client, persona: DefaultPersona, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Turns builds the request: persona framing, acknowledgement, the history with
// user messages as "user" turns and bot messages as "model" turns, then the
// latest user message once more as the closing turn. The history already
// holds that message, so the model sees it twice.
func (f *Fetcher) Turns(history []conversation.Message) []llm.Message {
	turns := make([]llm.Message, 0, len(history)+3)
	turns = append(turns,
		llm.Message{Role: llm.RoleUser, Content: f.persona},
		llm.Message{Role: llm.RoleModel, Content: Acknowledgement},
	)
	last := -1
	for i, m := range history {
		role := llm.RoleModel
		if m.Sender == conversation.SenderUser {
			role = llm.RoleUser
			last = i
		}
		turns = append(turns, llm.Message{Role: role, Content: m.Text})
	}
	if last >= 0 {
		turns = append(turns, llm.Message{Role: llm.RoleUser, Content: history[last].Text})
	}
	return turns
}

// Fetch makes one attempt. There is no retry; any failure becomes a non-success
// Outcome whose Err is logged here and nowhere shown to the user.
func (f *Fetcher) Fetch(ctx context.Context, history []conversation.Message) conversation.Outcome {
	if f.client == nil {
		return conversation.TransportError(errors.New("no completion client configured"))
	}

	resp, err := f.client.Generate(ctx, f.Turns(history))
	if err != nil {
		out := conversation.TransportError(err)
		if errors.Is(err, llm.ErrMalformedResponse) {
			out = conversation.MalformedResponse(err)
		}
		f.logger.Error().Err(err).Str("outcome", out.Kind.String()).Msg("error fetching bot response")
		return out
	}
	if resp.Content == "" {
		err := errors.Wrap(llm.ErrMalformedResponse, "empty completion")
		f.logger.Error().Err(err).Msg("error fetching bot response")
		return conversation.MalformedResponse(err)
	}

	f.logger.Debug().
		Str("model", resp.Model).
		Int("prompt_tokens", resp.PromptTokens).
		Int("completion_tokens", resp.CompletionTokens).
		Int("total_tokens", resp.TotalTokens).
		Msg("llm response")
	return conversation.Success(resp.Content)
}

// ReadPersona loads a persona override from path. An empty path or an
// unreadable file yields "".
func ReadPersona(path string, logger zerolog.Logger) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("system prompt file not found or unreadable")
		return ""
	}
	return strings.TrimSpace(string(data))
}
