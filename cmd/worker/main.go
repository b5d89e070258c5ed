package main

import (
	"context"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/phuslu/log"

	"podcast-digest/internal/config"
	"podcast-digest/internal/db"
	"podcast-digest/internal/delivery"
	"podcast-digest/internal/feed"
	"podcast-digest/internal/pipeline"
	"podcast-digest/internal/summarize"
	"podcast-digest/internal/transcribe"
	"podcast-digest/internal/worker"
	"podcast-digest/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

var _ pipeline.Store = (*db.Store)(nil)

// retryDelay backs off exponentially: 5min, 10min, 20min, ... capped at 24h.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	delay := 5 * time.Minute
	maxDelay := 24 * time.Hour

	for i := 0; i < n; i++ {
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
			break
		}
	}

	log.Warn().Err(err).Str("task", task.Type()).Int("failures", n+1).Dur("retry_in", delay).Msg("Task failed")
	return delay
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg == nil {
		return
	}
	cfg.SetupLogger()

	if err := db.InitDB(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("Could not connect to database")
	}

	summarizer, err := summarize.New(context.Background(), cfg.SummarizerConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create summarizer")
	}

	bot, err := delivery.NewBot(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create Telegram bot")
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				tasks.QueueHigh:    2,
				tasks.QueueDefault: 1,
			},
			RetryDelayFunc: retryDelay,
		},
	)

	taskHandler := worker.NewTaskHandler(client, worker.Services{
		Store:       db.NewStore(db.DB),
		Feeds:       feed.NewSource(cfg.HTTPTimeout),
		Transcriber: transcribe.NewClient(cfg.TranscriptionAPIURL, cfg.TranscriptionAPIKey, cfg.HTTPTimeout),
		Summarizer:  summarizer,
		Sink:        delivery.NewTelegramSink(bot),
		Options:     cfg.PipelineOptions(),
	})

	mux := asynq.NewServeMux()
	taskHandler.Register(mux)

	log.Info().Str("commit", CommitSHA).Str("summarizer", cfg.Summarizer).Msg("Worker starting")
	if err := srv.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("Could not run worker")
	}
}
