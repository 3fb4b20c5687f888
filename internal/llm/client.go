package llm

import (
	"context"

	"github.com/pkg/errors"
)

// Roles used in Message. Providers translate them to their own vocabulary.
const (
	RoleSystem = "system"
	RoleUser   = "user"
	RoleModel  = "model"
)

// ErrMalformedResponse is returned when the provider answered but the body held
// no usable completion text.
var ErrMalformedResponse = errors.New("malformed completion response")

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}
