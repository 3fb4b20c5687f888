package pilot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gws-pilot/internal/config"
	"gws-pilot/internal/conversation"
	"gws-pilot/internal/scheduler"
	"gws-pilot/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LLMProvider:    config.ProviderGemini,
		RenderMode:     config.RenderSimple,
		LogFilePath:    filepath.Join(t.TempDir(), "exchanges.jsonl"),
		SessionIdleTTL: 30 * time.Minute,
		SweepSchedule:  "@every 5m",
		ReportSchedule: "0 21 * * *",
	}
}

func replyWith(text string, err error) conversation.Fetcher {
	return conversation.FetcherFunc(func(ctx context.Context, h []conversation.Message) conversation.Outcome {
		if err != nil {
			return conversation.TransportError(err)
		}
		return conversation.Success(text)
	})
}

func TestNewWithFetcher_RecordsExchanges(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewWithFetcher(cfg, replyWith("Hello!", nil), zerolog.Nop())
	require.NoError(t, err)
	defer app.Close()

	web := app.Sessions.Create()
	_, err = web.Store.SubmitUserText(context.Background(), "Hi")
	require.NoError(t, err)

	tg := app.Sessions.GetOrCreate("tg:12")
	_, err = tg.Store.SubmitUserText(context.Background(), "Hey")
	require.NoError(t, err)

	events, err := app.Recorder.LoadInteractions()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, web.ID, events[0].SessionID)
	assert.Equal(t, "web", events[0].Channel)
	assert.Equal(t, "Hi", events[0].UserMessage)
	assert.Equal(t, "Hello!", events[0].BotResponse)
	assert.Equal(t, "success", events[0].Outcome)
	assert.Equal(t, "telegram", events[1].Channel)
}

func TestNewWithFetcher_FailureRecordedWithFallback(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewWithFetcher(cfg, replyWith("", errors.New("boom")), zerolog.Nop())
	require.NoError(t, err)

	s := app.Sessions.Create()
	reply, err := s.Store.SubmitUserText(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Equal(t, conversation.FallbackText, reply.Text)

	stats, err := app.DailyReport(time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalExchanges)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.ByOutcome["transport_error"])
}

func TestNewWithFetcher_CustomGreeting(t *testing.T) {
	cfg := testConfig(t)
	cfg.Greeting = "Hi there!"
	app, err := NewWithFetcher(cfg, replyWith("x", nil), zerolog.Nop())
	require.NoError(t, err)

	s := app.Sessions.Create()
	assert.Equal(t, "Hi there!", s.Store.Messages()[0].Text)
}

func TestSpeechAvailability(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewWithFetcher(cfg, replyWith("x", nil), zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, app.SpeechAvailable())
	assert.Nil(t, app.Sessions.Create().Recognizer)

	cfg = testConfig(t)
	cfg.SpeechEnabled = true
	cfg.OpenAIAPIKey = "sk-test"
	app, err = NewWithFetcher(cfg, replyWith("x", nil), zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, app.SpeechAvailable())
	assert.NotNil(t, app.Sessions.Create().Recognizer)
}

func TestOpenRecorder_PrefersSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.SQLitePath = filepath.Join(t.TempDir(), "pilot.db")
	rec, err := OpenRecorder(cfg)
	require.NoError(t, err)
	sqlite, ok := rec.(*storage.SQLiteRecorder)
	require.True(t, ok)
	require.NoError(t, sqlite.Close())
}

func TestNewWithFetcher_BadRenderMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.RenderMode = "fancy"
	_, err := NewWithFetcher(cfg, replyWith("x", nil), zerolog.Nop())
	require.Error(t, err)
}

func TestSchedule(t *testing.T) {
	app, err := NewWithFetcher(testConfig(t), replyWith("x", nil), zerolog.Nop())
	require.NoError(t, err)

	s := scheduler.New(zerolog.Nop())
	require.NoError(t, app.Schedule(s))
	assert.True(t, s.IsRunning())

	cfg := testConfig(t)
	cfg.SweepSchedule = "whenever"
	app, err = NewWithFetcher(cfg, replyWith("x", nil), zerolog.Nop())
	require.NoError(t, err)
	assert.Error(t, app.Schedule(scheduler.New(zerolog.Nop())))
}

func TestNew_GeminiClientClosedWithApp(t *testing.T) {
	cfg := testConfig(t)
	cfg.GeminiAPIKey = "k"
	cfg.GeminiModel = "gemini-2.0-flash"

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, a.client)
	assert.NoError(t, a.Close())
}
