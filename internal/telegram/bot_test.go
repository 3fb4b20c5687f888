package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gws-pilot/internal/auth"
	"gws-pilot/internal/conversation"
	"gws-pilot/internal/session"
	"gws-pilot/internal/speech"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []string
	requests int
	fileURL  string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	sw := c.(tgbotapi.MessageConfig)
	f.mu.Lock()
	f.sent = append(f.sent, sw.Text)
	f.mu.Unlock()
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.requests++
	f.mu.Unlock()
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) GetFileDirectURL(fileID string) (string, error) {
	if f.fileURL == "" {
		return "", errors.New("no such file")
	}
	return f.fileURL + "/" + fileID, nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	b, _ := io.ReadAll(audio)
	if len(b) == 0 {
		return "", errors.New("no audio")
	}
	return f.text, nil
}

func newTestBot(fetcher conversation.Fetcher, tr speech.Transcriber) (*Bot, *fakeSender) {
	fs := &fakeSender{}
	sessions := session.NewManager(func(id string) (*conversation.Store, *speech.Recognizer) {
		return conversation.NewStore(fetcher), speech.NewRecognizer(tr, zerolog.Nop())
	})
	return &Bot{s: fs, sessions: sessions, logger: zerolog.Nop(), httpClient: http.DefaultClient, maxVoice: maxVoiceBytes}, fs
}

func echo() conversation.Fetcher {
	return conversation.FetcherFunc(func(ctx context.Context, h []conversation.Message) conversation.Outcome {
		return conversation.Success("re: " + h[len(h)-1].Text)
	})
}

func textMessage(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{From: &tgbotapi.User{ID: 7}, Chat: &tgbotapi.Chat{ID: chatID}, Text: text}
}

func command(chatID int64, cmd string) *tgbotapi.Message {
	m := textMessage(chatID, "/"+cmd)
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}}
	return m
}

func TestHandleIncomingMessage_RepliesPerChat(t *testing.T) {
	b, fs := newTestBot(echo(), nil)

	b.handleIncomingMessage(context.Background(), textMessage(100, "hello"))
	b.handleIncomingMessage(context.Background(), textMessage(200, "other chat"))

	assert.Equal(t, []string{"re: hello", "re: other chat"}, fs.messages())
	assert.Equal(t, 2, b.sessions.Len())

	s, ok := b.sessions.Get(SessionKey(100))
	require.True(t, ok)
	msgs := s.Store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, conversation.DefaultGreeting, msgs[0].Text)
	assert.Equal(t, "hello", msgs[1].Text)
}

func TestHandleIncomingMessage_FailureSendsFallback(t *testing.T) {
	failing := conversation.FetcherFunc(func(ctx context.Context, h []conversation.Message) conversation.Outcome {
		return conversation.TransportError(errors.New("status 500"))
	})
	b, fs := newTestBot(failing, nil)

	b.handleIncomingMessage(context.Background(), textMessage(1, "hi"))
	assert.Equal(t, []string{conversation.FallbackText}, fs.messages())
}

func TestHandleIncomingMessage_EmptyIsIgnored(t *testing.T) {
	b, fs := newTestBot(echo(), nil)
	b.handleIncomingMessage(context.Background(), textMessage(1, "   "))
	assert.Empty(t, fs.messages())
}

func TestHandleIncomingMessage_BusyChatGetsNotice(t *testing.T) {
	release := make(chan struct{})
	slow := conversation.FetcherFunc(func(ctx context.Context, h []conversation.Message) conversation.Outcome {
		<-release
		return conversation.Success("done")
	})
	b, fs := newTestBot(slow, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.handleIncomingMessage(context.Background(), textMessage(5, "first"))
	}()
	s := b.sessions.GetOrCreate(SessionKey(5))
	require.Eventually(t, s.Store.Busy, time.Second, 5*time.Millisecond)

	b.handleIncomingMessage(context.Background(), textMessage(5, "second"))
	close(release)
	<-done

	assert.Equal(t, []string{busyNotice, "done"}, fs.messages())
	assert.Len(t, s.Store.Messages(), 3)
}

func TestStartCommand_ResetsAndGreets(t *testing.T) {
	b, fs := newTestBot(echo(), nil)
	b.handleIncomingMessage(context.Background(), textMessage(9, "hi"))
	b.handleIncomingMessage(context.Background(), command(9, "start"))

	assert.Equal(t, []string{"re: hi", conversation.DefaultGreeting}, fs.messages())
	s, _ := b.sessions.Get(SessionKey(9))
	assert.Len(t, s.Store.Messages(), 1)
}

func TestResetCallback(t *testing.T) {
	b, fs := newTestBot(echo(), nil)
	b.handleIncomingMessage(context.Background(), textMessage(3, "hi"))

	b.handleCallback(&tgbotapi.CallbackQuery{ID: "cb", Data: resetCmd, Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 3}}})
	assert.Equal(t, []string{"re: hi", resetNotice, conversation.DefaultGreeting}, fs.messages())
	s, _ := b.sessions.Get(SessionKey(3))
	assert.Len(t, s.Store.Messages(), 1)
}

func TestVoice_WithoutRecognizer(t *testing.T) {
	b, fs := newTestBot(echo(), nil)
	msg := textMessage(4, "")
	msg.Voice = &tgbotapi.Voice{FileID: "f1"}

	b.handleIncomingMessage(context.Background(), msg)
	assert.Equal(t, []string{noVoiceReply}, fs.messages())
}

func TestVoice_TranscribedAndAnswered(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/f1", r.URL.Path)
		_, _ = w.Write([]byte("OggS...."))
	}))
	defer files.Close()

	b, fs := newTestBot(echo(), fakeTranscriber{text: "how do I share a calendar"})
	fs.fileURL = files.URL
	msg := textMessage(4, "")
	msg.Voice = &tgbotapi.Voice{FileID: "f1"}

	b.handleIncomingMessage(context.Background(), msg)
	assert.Equal(t, []string{"re: how do I share a calendar"}, fs.messages())
}

func TestVoice_DownloadFailure(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer files.Close()

	b, fs := newTestBot(echo(), fakeTranscriber{text: "x"})
	fs.fileURL = files.URL
	msg := textMessage(4, "")
	msg.Voice = &tgbotapi.Voice{FileID: "f1"}

	b.handleIncomingMessage(context.Background(), msg)
	assert.Equal(t, []string{voiceFailed}, fs.messages())
	s, _ := b.sessions.Get(SessionKey(4))
	assert.Len(t, s.Store.Messages(), 1)
	assert.False(t, s.Recognizer.Active())
}

type countingTranscriber struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	_, _ = io.ReadAll(audio)
	return "cut off", nil
}

func TestVoice_OversizedDownloadIsRejected(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789abcdef"))
	}))
	defer files.Close()

	tr := &countingTranscriber{}
	b, fs := newTestBot(echo(), tr)
	b.maxVoice = 8
	fs.fileURL = files.URL
	msg := textMessage(4, "")
	msg.Voice = &tgbotapi.Voice{FileID: "f1"}

	b.handleIncomingMessage(context.Background(), msg)
	assert.Equal(t, []string{voiceTooLong}, fs.messages())
	assert.Zero(t, tr.calls)
	s, _ := b.sessions.Get(SessionKey(4))
	assert.Len(t, s.Store.Messages(), 1)
	assert.False(t, s.Recognizer.Active())
}

func TestVoice_ExactLimitIsAccepted(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("01234567"))
	}))
	defer files.Close()

	b, fs := newTestBot(echo(), fakeTranscriber{text: "open my drive"})
	b.maxVoice = 8
	fs.fileURL = files.URL
	msg := textMessage(4, "")
	msg.Voice = &tgbotapi.Voice{FileID: "f1"}

	b.handleIncomingMessage(context.Background(), msg)
	assert.Equal(t, []string{"re: open my drive"}, fs.messages())
}

func TestVoice_DeclaredSizeOverLimitSkipsDownload(t *testing.T) {
	var hits int
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("x"))
	}))
	defer files.Close()

	b, fs := newTestBot(echo(), fakeTranscriber{text: "x"})
	fs.fileURL = files.URL
	msg := textMessage(4, "")
	msg.Voice = &tgbotapi.Voice{FileID: "f1", FileSize: maxVoiceBytes + 1}

	b.handleIncomingMessage(context.Background(), msg)
	assert.Equal(t, []string{voiceTooLong}, fs.messages())
	assert.Zero(t, hits)
}

func TestAllowlist_RejectsUnknownUsers(t *testing.T) {
	b, fs := newTestBot(echo(), nil)
	allow, err := auth.New(nil, []int64{7})
	require.NoError(t, err)
	b.allow = allow

	b.handleIncomingMessage(context.Background(), textMessage(1, "hi"))
	stranger := textMessage(2, "hi")
	stranger.From = &tgbotapi.User{ID: 8}
	b.handleIncomingMessage(context.Background(), stranger)

	assert.Equal(t, []string{"re: hi", privateNotice}, fs.messages())
	_, ok := b.sessions.Get(SessionKey(2))
	assert.False(t, ok)
}
