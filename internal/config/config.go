// Package config loads settings from the environment, an optional .env file
// and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/phuslu/log"

	"podcast-digest/internal/pipeline"
	"podcast-digest/internal/summarize"
)

type Config struct {
	// Infrastructure
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" description:"Postgres connection URL" required:"true"`
	RedisAddr   string `long:"redis-addr" env:"REDIS_ADDR" default:"127.0.0.1:6379" description:"Redis address for the task queue"`
	Port        string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseURL     string `long:"base-url" env:"BASE_URL" description:"Public base URL used in generated feeds"`

	// External services
	TelegramBotToken    string        `long:"telegram-bot-token" env:"TELEGRAM_BOT_TOKEN" description:"Telegram bot token"`
	TranscriptionAPIURL string        `long:"transcription-api-url" env:"TRANSCRIPTION_API_URL" default:"https://api.assemblyai.com/v2" description:"Transcription provider base URL"`
	TranscriptionAPIKey string        `long:"transcription-api-key" env:"TRANSCRIPTION_API_KEY" description:"Transcription provider API key"`
	Summarizer          string        `long:"summarizer" env:"SUMMARIZER" default:"anthropic" choice:"anthropic" choice:"gemini" description:"Summarization provider"`
	AnthropicAPIKey     string        `long:"anthropic-api-key" env:"ANTHROPIC_API_KEY" description:"Anthropic API key"`
	AnthropicModel      string        `long:"anthropic-model" env:"ANTHROPIC_MODEL" description:"Anthropic model"`
	GeminiAPIKey        string        `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key"`
	GeminiModel         string        `long:"gemini-model" env:"GEMINI_MODEL" description:"Gemini model"`
	TaddyAPIURL         string        `long:"taddy-api-url" env:"TADDY_API_URL" default:"https://api.taddy.org" description:"Taddy podcast search API URL"`
	TaddyAPIKey         string        `long:"taddy-api-key" env:"TADDY_API_KEY" description:"Taddy API key, enables search by title"`
	TaddyUserID         string        `long:"taddy-user-id" env:"TADDY_USER_ID" description:"Taddy user ID"`
	HTTPTimeout         time.Duration `long:"http-timeout" env:"HTTP_TIMEOUT" default:"60s" description:"Timeout for calls to external services"`

	// Pipeline tuning
	MaxTranscriptionAttempts int           `long:"max-transcription-attempts" env:"MAX_TRANSCRIPTION_ATTEMPTS" default:"3" description:"Transcription submits before an episode is given up"`
	MaxPollErrors            int           `long:"max-poll-errors" env:"MAX_POLL_ERRORS" default:"10" description:"Consecutive status errors before a job is failed"`
	MaxSummaryAttempts       int           `long:"max-summary-attempts" env:"MAX_SUMMARY_ATTEMPTS" default:"3" description:"Summarization attempts per episode"`
	RetryBaseDelay           time.Duration `long:"retry-base-delay" env:"RETRY_BASE_DELAY" default:"5m" description:"First retry delay, doubled per attempt"`
	RetryMaxDelay            time.Duration `long:"retry-max-delay" env:"RETRY_MAX_DELAY" default:"24h" description:"Retry delay cap"`
	LeaseTTL                 time.Duration `long:"lease-ttl" env:"LEASE_TTL" default:"10m" description:"How long a worker owns an episode"`
	PollWorkers              int           `long:"poll-workers" env:"POLL_WORKERS" default:"8" description:"Concurrent status polls"`
	BatchSize                int           `long:"batch-size" env:"BATCH_SIZE" default:"100" description:"Episodes handled per pass"`
	Backlog                  time.Duration `long:"backlog" env:"BACKLOG" default:"168h" description:"Skip episodes published this long before subscribing, 0 disables"`
	DegradedNotifications    bool          `long:"degraded-notifications" env:"DEGRADED_NOTIFICATIONS" description:"Notify transcript-only episodes whose summary failed"`

	// Schedules
	FetchSchedule    string `long:"fetch-schedule" env:"FETCH_SCHEDULE" default:"@every 1h" description:"Feed fetch schedule"`
	SubmitSchedule   string `long:"submit-schedule" env:"SUBMIT_SCHEDULE" default:"@every 10m" description:"Transcription submit pass schedule"`
	PollSchedule     string `long:"poll-schedule" env:"POLL_SCHEDULE" default:"@every 2m" description:"Transcription poll pass schedule"`
	AnalysisSchedule string `long:"analysis-schedule" env:"ANALYSIS_SCHEDULE" default:"@every 5m" description:"Analysis pass schedule"`
	NotifySchedule   string `long:"notify-schedule" env:"NOTIFY_SCHEDULE" default:"@every 5m" description:"Notification pass schedule"`

	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads .env when present, then parses args over the environment.
// It returns nil without error when help was requested.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return nil, fmt.Errorf("retry max delay %s is below base delay %s", cfg.RetryMaxDelay, cfg.RetryBaseDelay)
	}
	return &cfg, nil
}

// SetupLogger configures the default logger for the process.
func (c *Config) SetupLogger() {
	level := log.InfoLevel
	if c.Debug {
		level = log.DebugLevel
	}
	log.DefaultLogger = log.Logger{
		Level:      level,
		Caller:     1,
		TimeFormat: time.RFC3339,
		Writer:     &log.IOWriter{Writer: os.Stderr},
	}
}

func (c *Config) PipelineOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Transcription = pipeline.RetryPolicy{MaxAttempts: c.MaxTranscriptionAttempts, BaseDelay: c.RetryBaseDelay, MaxDelay: c.RetryMaxDelay}
	opts.Summary = pipeline.RetryPolicy{MaxAttempts: c.MaxSummaryAttempts, BaseDelay: c.RetryBaseDelay, MaxDelay: c.RetryMaxDelay}
	opts.MaxPollErrors = c.MaxPollErrors
	opts.LeaseTTL = c.LeaseTTL
	opts.PollWorkers = c.PollWorkers
	opts.BatchSize = c.BatchSize
	opts.Backlog = c.Backlog
	opts.Degraded = c.DegradedNotifications
	return opts
}

func (c *Config) SummarizerConfig() summarize.Config {
	return summarize.Config{
		Provider:       c.Summarizer,
		AnthropicKey:   c.AnthropicAPIKey,
		AnthropicModel: c.AnthropicModel,
		GeminiKey:      c.GeminiAPIKey,
		GeminiModel:    c.GeminiModel,
		Timeout:        c.HTTPTimeout,
	}
}
