// Package pilot wires configuration into a running assistant: the completion
// client, conversation stores, speech, the exchange recorder and the
// scheduled jobs shared by every front door.
package pilot

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gws-pilot/internal/analytics"
	"gws-pilot/internal/config"
	"gws-pilot/internal/conversation"
	"gws-pilot/internal/fetcher"
	"gws-pilot/internal/llm"
	"gws-pilot/internal/render"
	"gws-pilot/internal/scheduler"
	"gws-pilot/internal/session"
	"gws-pilot/internal/speech"
	"gws-pilot/internal/storage"
)

type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Sessions *session.Manager
	Renderer render.Renderer
	Recorder storage.Recorder

	fetcher     conversation.Fetcher
	transcriber speech.Transcriber
	client      io.Closer
}

// New builds the app with the completion client selected by cfg.LLMProvider.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	client, err := llm.NewFactory(cfg).CreateClient(ctx, string(cfg.LLMProvider))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create llm client")
	}
	persona := fetcher.ReadPersona(cfg.SystemPromptPath, logger)
	f := fetcher.New(client, fetcher.WithPersona(persona), fetcher.WithLogger(logger))
	logger.Info().Str("provider", string(cfg.LLMProvider)).Msg("llm client ready")
	a, err := NewWithFetcher(cfg, f, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := client.(io.Closer); ok {
		a.client = c
	}
	return a, nil
}

// NewWithFetcher builds the app around an existing fetcher.
func NewWithFetcher(cfg *config.Config, f conversation.Fetcher, logger zerolog.Logger) (*App, error) {
	renderer, err := render.New(string(cfg.RenderMode))
	if err != nil {
		return nil, err
	}
	recorder, err := OpenRecorder(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Renderer: renderer,
		Recorder: recorder,
		fetcher:  f,
	}
	if cfg.SpeechAvailable() {
		oc := llm.NewOpenAIConfig(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenRouterReferrer, cfg.OpenRouterTitle)
		a.transcriber = speech.NewWhisper(oc, cfg.SpeechModel, cfg.SpeechLanguage)
		logger.Info().Str("model", cfg.SpeechModel).Msg("speech input enabled")
	} else {
		logger.Info().Msg("speech input disabled")
	}
	a.Sessions = session.NewManager(a.newConversation)
	return a, nil
}

// OpenRecorder prefers SQLite when SQLITE_PATH is set and falls back to the
// JSONL file.
func OpenRecorder(cfg *config.Config) (storage.Recorder, error) {
	if cfg.SQLitePath != "" {
		rec, err := storage.NewSQLiteRecorder(cfg.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open sqlite recorder")
		}
		return rec, nil
	}
	rec, err := storage.NewFileRecorder(cfg.LogFilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file recorder")
	}
	return rec, nil
}

func (a *App) SpeechAvailable() bool { return a.transcriber != nil }

func (a *App) newConversation(id string) (*conversation.Store, *speech.Recognizer) {
	logger := a.Logger.With().Str("session", id).Logger()
	store := conversation.NewStore(a.fetcher,
		conversation.WithGreeting(a.Config.Greeting),
		conversation.WithLogger(logger),
		conversation.WithExchangeHook(a.recordExchange(id)),
	)
	var rec *speech.Recognizer
	if a.transcriber != nil {
		rec = speech.NewRecognizer(a.transcriber, logger)
	}
	return store, rec
}

func (a *App) recordExchange(id string) func(conversation.Exchange) {
	channel := session.ChannelOf(id)
	return func(ex conversation.Exchange) {
		err := a.Recorder.AppendInteraction(storage.Event{
			Timestamp:   ex.StartedAt.UTC(),
			SessionID:   id,
			Channel:     channel,
			UserMessage: ex.UserText,
			BotResponse: ex.BotText,
			Outcome:     ex.Outcome.String(),
			LatencyMS:   ex.Latency.Milliseconds(),
		})
		if err != nil {
			a.Logger.Error().Err(err).Str("session", id).Msg("failed to record exchange")
		}
	}
}

// DailyReport summarizes the recorded exchanges of day.
func (a *App) DailyReport(day time.Time) (*analytics.DailyStats, error) {
	events, err := a.Recorder.LoadInteractions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load exchanges")
	}
	return analytics.AnalyzeDailyLogs(events, day), nil
}

// Schedule registers the idle-session sweep and the daily usage report.
func (a *App) Schedule(s *scheduler.Scheduler) error {
	if err := s.Every(a.Config.SweepSchedule, "session-sweep", func(ctx context.Context) error {
		if n := a.Sessions.Sweep(a.Config.SessionIdleTTL); n > 0 {
			a.Logger.Info().Int("removed", n).Int("remaining", a.Sessions.Len()).Msg("idle sessions swept")
		}
		return nil
	}); err != nil {
		return err
	}
	return s.Every(a.Config.ReportSchedule, "daily-report", func(ctx context.Context) error {
		stats, err := a.DailyReport(time.Now().UTC())
		if err != nil {
			return err
		}
		a.Logger.Info().
			Str("date", stats.Date).
			Int("exchanges", stats.TotalExchanges).
			Int("sessions", stats.UniqueSessions).
			Int("failures", stats.Failures).
			Int64("avg_latency_ms", stats.AvgLatencyMS).
			Msg("daily usage report")
		return nil
	})
}

func (a *App) Close() error {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close llm client")
		}
	}
	if c, ok := a.Recorder.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
