package config

import (
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/pkg/errors"
)

type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type RenderMode string

const (
	RenderSimple   RenderMode = "simple"
	RenderMarkdown RenderMode = "markdown"
)

type Config struct {
	// HTTP surface
	HTTPAddr           string   `env:"HTTP_ADDR" envDefault:":8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey     string      `env:"GEMINI_API_KEY"`
	GeminiModel      string      `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	GeminiEndpoint   string      `env:"GEMINI_ENDPOINT"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Prompts
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH"`
	Greeting         string `env:"GREETING"`

	// Speech input, backed by Whisper; needs OPENAI_API_KEY
	SpeechEnabled  bool   `env:"SPEECH_ENABLED" envDefault:"true"`
	SpeechModel    string `env:"SPEECH_MODEL" envDefault:"whisper-1"`
	SpeechLanguage string `env:"SPEECH_LANGUAGE" envDefault:"en"`

	// Formatting
	RenderMode RenderMode `env:"RENDER_MODE" envDefault:"simple"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	// Storage
	LogFilePath string `env:"LOG_FILE_PATH" envDefault:"logs/exchanges.jsonl"`
	SQLitePath  string `env:"SQLITE_PATH"`

	// Sessions and scheduled jobs
	SessionIdleTTL     time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	SessionCreateRate  float64       `env:"SESSION_CREATE_RATE" envDefault:"2"`
	SessionCreateBurst int           `env:"SESSION_CREATE_BURST" envDefault:"20"`
	SweepSchedule      string        `env:"SWEEP_SCHEDULE" envDefault:"@every 5m"`
	ReportSchedule     string        `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`

	// Telegram front door (optional)
	TelegramBotToken      string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAllowedUsers  []int64 `env:"TELEGRAM_ALLOWED_USERS" envSeparator:","`
	TelegramAllowlistPath string  `env:"TELEGRAM_ALLOWLIST_PATH"`
}

func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGemini, ProviderOpenAI, ProviderYandex:
	default:
		return errors.Errorf("unknown llm provider: %s", c.LLMProvider)
	}
	switch c.RenderMode {
	case RenderSimple, RenderMarkdown:
	default:
		return errors.Errorf("unknown render mode: %s", c.RenderMode)
	}
	if c.SessionIdleTTL <= 0 {
		return errors.New("SESSION_IDLE_TTL must be positive")
	}
	return nil
}

// SpeechAvailable reports whether a recognizer can be built from this config.
func (c *Config) SpeechAvailable() bool {
	return c.SpeechEnabled && c.OpenAIAPIKey != ""
}
