package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"

	"gws-pilot/internal/conversation"
	"gws-pilot/internal/session"
)

const defaultConversation = "default"

type AskParams struct {
	Question     string `json:"question" mcp:"the Google Workspace question to ask"`
	Conversation string `json:"conversation,omitempty" mcp:"conversation name; questions in the same conversation share history (default: \"default\")"`
}

type ConversationParams struct {
	Conversation string `json:"conversation,omitempty" mcp:"conversation name (default: \"default\")"`
}

// PilotTools exposes the assistant's conversations as MCP tools.
type PilotTools struct {
	sessions *session.Manager
}

func NewPilotTools(sessions *session.Manager) *PilotTools {
	return &PilotTools{sessions: sessions}
}

func sessionKey(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultConversation
	}
	return "mcp:" + name
}

func textResult(text string, isError bool) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: isError,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (p *PilotTools) Ask(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[AskParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	sess := p.sessions.GetOrCreate(sessionKey(args.Conversation))

	reply, err := sess.Store.SubmitUserText(ctx, args.Question)
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		return textResult("question is empty", true), nil
	case errors.Is(err, conversation.ErrBusy):
		return textResult("the previous question in this conversation is still being answered", true), nil
	case err != nil:
		return nil, err
	}
	return textResult(reply.Text, false), nil
}

func (p *PilotTools) Transcript(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[ConversationParams]) (*mcp.CallToolResultFor[any], error) {
	sess, ok := p.sessions.Get(sessionKey(params.Arguments.Conversation))
	if !ok {
		return textResult("no such conversation", true), nil
	}
	var b strings.Builder
	for _, m := range sess.Store.Snapshot().Messages {
		text := m.Text
		if m.Pending {
			text = "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Sender, text)
	}
	return textResult(b.String(), false), nil
}

func (p *PilotTools) Reset(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[ConversationParams]) (*mcp.CallToolResultFor[any], error) {
	p.sessions.Reset(sessionKey(params.Arguments.Conversation))
	return textResult("conversation cleared", false), nil
}

func (p *PilotTools) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_pilot",
		Description: "Asks the Google Workspace assistant a question and returns its answer",
	}, p.Ask)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "conversation_transcript",
		Description: "Returns the transcript of a conversation with the assistant",
	}, p.Transcript)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "reset_conversation",
		Description: "Clears a conversation so the next question starts fresh",
	}, p.Reset)
}
