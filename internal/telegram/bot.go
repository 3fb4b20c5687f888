// Package telegram is the Telegram front door. Each chat is its own
// conversation, keyed "tg:<chat id>" in the session registry.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gws-pilot/internal/auth"
	"gws-pilot/internal/conversation"
	"gws-pilot/internal/session"
	"gws-pilot/internal/speech"
)

const (
	resetCmd = "reset_ctx"

	privateNotice = "Sorry, this assistant is private."
	busyNotice    = "Still working on your previous question, one moment..."
	resetNotice   = "Conversation cleared."
	noVoiceReply  = "Voice messages are not supported here, please type your question."
	voiceFailed   = "Sorry, I couldn't make out that voice message. Please try again."
	voiceTooLong  = "That voice message is too long, please keep it under a few minutes."

	maxVoiceBytes = 20 << 20
)

var errVoiceTooLarge = errors.New("voice message exceeds size limit")

func SessionKey(chatID int64) string {
	return fmt.Sprintf("tg:%d", chatID)
}

type Bot struct {
	api        *tgbotapi.BotAPI
	s          sender
	sessions   *session.Manager
	allow      *auth.Allowlist
	logger     zerolog.Logger
	httpClient *http.Client
	maxVoice   int64

	wg sync.WaitGroup
}

// New logs in to the Bot API. A nil allowlist admits every user.
func New(botToken string, sessions *session.Manager, allow *auth.Allowlist, logger zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, errors.Wrap(err, "telegram login failed")
	}
	logger.Info().Str("username", api.Self.UserName).Msg("telegram bot authorized")
	return &Bot{
		api:        api,
		s:          botAPISender{api: api},
		sessions:   sessions,
		allow:      allow,
		logger:     logger,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxVoice:   maxVoiceBytes,
	}, nil
}

// Start polls for updates until ctx is cancelled, then waits for in-flight
// replies to be delivered.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch handles each update on its own goroutine so a slow reply in one
// chat does not hold up the others.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		switch {
		case update.Message != nil:
			b.handleIncomingMessage(ctx, update.Message)
		case update.CallbackQuery != nil:
			b.handleCallback(update.CallbackQuery)
		}
	}()
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	key := SessionKey(chatID)

	if !b.allowed(msg.From) {
		b.logger.Warn().Int64("chat", chatID).Msg("message from user not on the allowlist")
		b.sendMessage(chatID, privateNotice)
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "reset":
			b.sessions.Reset(key)
			sess := b.sessions.GetOrCreate(key)
			if msg.Command() == "reset" {
				b.sendMessage(chatID, resetNotice)
			}
			b.sendMessage(chatID, sess.Store.Messages()[0].Text)
			return
		}
	}

	sess := b.sessions.GetOrCreate(key)
	text := msg.Text
	if msg.Voice != nil {
		transcript, ok := b.transcribeVoice(ctx, chatID, sess, msg.Voice)
		if !ok {
			return
		}
		text = transcript
	}

	b.logger.Info().Int64("chat", chatID).Str("text", text).Msg("incoming message")
	b.sendTyping(chatID)

	reply, err := sess.Store.SubmitUserText(context.WithoutCancel(ctx), text)
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		return
	case errors.Is(err, conversation.ErrBusy):
		b.sendMessage(chatID, busyNotice)
		return
	case err != nil:
		b.logger.Error().Err(err).Int64("chat", chatID).Msg("submit failed")
		return
	}

	out := tgbotapi.NewMessage(chatID, reply.Text)
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Start over", resetCmd),
		),
	)
	if _, err := b.s.Send(out); err != nil {
		b.logger.Error().Err(err).Int64("chat", chatID).Msg("failed to send reply")
	}
}

// transcribeVoice runs a voice note through the session recognizer. It
// reports false when the user has already been told why nothing happened.
func (b *Bot) transcribeVoice(ctx context.Context, chatID int64, sess *session.Session, voice *tgbotapi.Voice) (string, bool) {
	if !speech.Available(sess.Recognizer) {
		b.sendMessage(chatID, noVoiceReply)
		return "", false
	}
	if sess.Store.Busy() {
		b.sendMessage(chatID, busyNotice)
		return "", false
	}

	if int64(voice.FileSize) > b.maxVoice {
		b.sendMessage(chatID, voiceTooLong)
		return "", false
	}

	url, err := b.s.GetFileDirectURL(voice.FileID)
	if err != nil {
		b.logger.Error().Err(err).Str("file", voice.FileID).Msg("voice url lookup failed")
		b.sendMessage(chatID, voiceFailed)
		return "", false
	}
	audio, err := b.download(ctx, url)
	if errors.Is(err, errVoiceTooLarge) {
		b.sendMessage(chatID, voiceTooLong)
		return "", false
	}
	if err != nil {
		b.logger.Warn().Err(err).Int64("chat", chatID).Msg("voice download failed")
		b.sendMessage(chatID, voiceFailed)
		return "", false
	}

	rec, err := sess.Recognizer.Start(ctx, "voice.ogg")
	if errors.Is(err, speech.ErrSessionActive) {
		b.sendMessage(chatID, busyNotice)
		return "", false
	}
	if err != nil {
		b.logger.Error().Err(err).Msg("speech start failed")
		b.sendMessage(chatID, voiceFailed)
		return "", false
	}

	_, writeErr := rec.Write(audio)
	rec.Stop()
	transcript, err := rec.Await(ctx)
	if writeErr != nil || err != nil {
		b.logger.Warn().AnErr("write", writeErr).AnErr("recognize", err).Int64("chat", chatID).Msg("voice message dropped")
		b.sendMessage(chatID, voiceFailed)
		return "", false
	}
	return transcript, true
}

// download fetches the whole clip, refusing anything over b.maxVoice rather
// than passing on a truncated recording.
func (b *Bot) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build download request")
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "download voice")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("download voice: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, b.maxVoice+1))
	if err != nil {
		return nil, errors.Wrap(err, "read voice")
	}
	if int64(len(data)) > b.maxVoice {
		return nil, errVoiceTooLarge
	}
	return data, nil
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Debug().Err(err).Msg("callback ack failed")
	}
	if cb.Data != resetCmd || cb.Message == nil || !b.allowed(cb.From) {
		return
	}
	chatID := cb.Message.Chat.ID
	key := SessionKey(chatID)
	b.sessions.Reset(key)
	sess := b.sessions.GetOrCreate(key)
	b.sendMessage(chatID, resetNotice)
	b.sendMessage(chatID, sess.Store.Messages()[0].Text)
}

func (b *Bot) allowed(u *tgbotapi.User) bool {
	if b.allow == nil {
		return true
	}
	return u != nil && b.allow.IsAllowed(u.ID)
}

func (b *Bot) sendTyping(chatID int64) {
	if _, err := b.s.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug().Err(err).Msg("typing indicator failed")
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat", chatID).Msg("failed to send message")
	}
}
