package llm

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gws-pilot/internal/config"
)

func TestFactory_CreateClient(t *testing.T) {
	f := NewFactory(&config.Config{
		GeminiAPIKey: "g-key",
		GeminiModel:  "gemini-2.0-flash",
		OpenAIAPIKey: "sk",
		OpenAIModel:  "gpt-test",
	})

	c, err := f.CreateClient(context.Background(), "Gemini")
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, c)

	c, err = f.CreateClient(context.Background(), ProviderOpenAI)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = f.CreateClient(context.Background(), "bard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown llm provider")
	assert.Implements(t, (*interface{ StackTrace() errors.StackTrace })(nil), err)
}
