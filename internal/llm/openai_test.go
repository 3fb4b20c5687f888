package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestOpenAI_GenerateMapsRolesAndHeaders(t *testing.T) {
	var seen chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "https://pilot.example", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "GWS Pilot", r.Header.Get("X-Title"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "c1", "object": "chat.completion", "model": "gpt-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Use *Share*."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", srv.URL+"/v1", "gpt-test", "https://pilot.example", "GWS Pilot")
	resp, err := c.Generate(context.Background(), []Message{
		{Role: RoleUser, Content: "persona"},
		{Role: RoleModel, Content: "ack"},
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "How do I share?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Use *Share*.", resp.Content)
	assert.Equal(t, 7, resp.TotalTokens)

	assert.Equal(t, "gpt-test", seen.Model)
	require.Len(t, seen.Messages, 4)
	assert.Equal(t, "user", seen.Messages[0].Role)
	assert.Equal(t, "assistant", seen.Messages[1].Role)
	assert.Equal(t, "system", seen.Messages[2].Role)
	assert.Equal(t, "How do I share?", seen.Messages[3].Content)
}

func TestOpenAI_EmptyChoicesIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "c1", "object": "chat.completion", "choices": []}`))
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", srv.URL+"/v1", "gpt-test", "", "")
	_, err := c.Generate(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestOpenAI_HTTPErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", srv.URL+"/v1", "gpt-test", "", "")
	_, err := c.Generate(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformedResponse))
}
