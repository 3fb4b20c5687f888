// Package render converts chat text into markup for the widget.
package render

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

const (
	ModeSimple   = "simple"
	ModeMarkdown = "markdown"
)

type Renderer interface {
	Render(text string) string
}

func New(mode string) (Renderer, error) {
	switch strings.ToLower(mode) {
	case "", ModeSimple:
		return Simple{}, nil
	case ModeMarkdown:
		return NewMarkdown(), nil
	default:
		return nil, errors.Errorf("unknown render mode: %s", mode)
	}
}

var (
	boldRe       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe     = regexp.MustCompile(`\*(.*?)\*`)
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	fenceRe      = regexp.MustCompile("```([\\s\\S]*?)```")
)

// Simple applies bold, italic, inline code, fenced code and line breaks, in
// that order, each pass global over the output of the previous one. Because the
// code passes run last, asterisks inside backticks are still converted, and an
// inline-code match can eat the inner backticks of a fence. Input is trusted:
// nothing is escaped.
type Simple struct{}

func (Simple) Render(text string) string {
	out := boldRe.ReplaceAllString(text, "<strong>${1}</strong>")
	out = italicRe.ReplaceAllString(out, "<em>${1}</em>")
	out = inlineCodeRe.ReplaceAllString(out, "<code>${1}</code>")
	out = fenceRe.ReplaceAllString(out, "<pre><code>${1}</code></pre>")
	return strings.ReplaceAll(out, "\n", "<br />")
}

// Markdown renders CommonMark with GFM extensions. Raw HTML in the input is
// dropped.
type Markdown struct {
	md goldmark.Markdown
}

func NewMarkdown() *Markdown {
	return &Markdown{md: goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)}
}

func (m *Markdown) Render(text string) string {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		return html.EscapeString(text)
	}
	return strings.TrimSpace(buf.String())
}
