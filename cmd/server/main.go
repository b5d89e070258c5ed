package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"podcast-digest/internal/config"
	"podcast-digest/internal/db"
	"podcast-digest/internal/delivery"
	"podcast-digest/internal/handlers"
	"podcast-digest/internal/middleware"
	"podcast-digest/internal/search"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

func newRouter(h *handlers.Handlers, botToken string) *mux.Router {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/rss/{uuid}", h.GetRSSFeed).Methods(http.MethodGet)

	// Two requests per second per user, bursts of five.
	rl := middleware.NewRateLimiterMiddleware(rate.Limit(2), 5)

	api := r.PathPrefix("/api").Subrouter()
	// Subrouters report a method mismatch as 404 unless they have their own handler.
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	api.Use(middleware.AuthMiddleware(botToken), rl.Middleware)
	api.HandleFunc("/auth", h.PostAuth).Methods(http.MethodPost)
	api.HandleFunc("/subscriptions", h.GetSubscriptions).Methods(http.MethodGet)
	api.HandleFunc("/subscriptions", h.PostSubscription).Methods(http.MethodPost)
	api.HandleFunc("/subscriptions/{id:[0-9]+}", h.PatchSubscription).Methods(http.MethodPatch)
	api.HandleFunc("/subscriptions/{id:[0-9]+}", h.DeleteSubscription).Methods(http.MethodDelete)
	api.HandleFunc("/episodes/failed", h.GetFailedEpisodes).Methods(http.MethodGet)
	api.HandleFunc("/podcasts/search", h.SearchPodcasts).Methods(http.MethodGet)

	return r
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

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := handlers.New(client, cfg.BaseURL)
	if cfg.TaddyAPIKey != "" {
		h.WithSearcher(search.NewTaddy(cfg.TaddyAPIURL, cfg.TaddyAPIKey, cfg.TaddyUserID, cfg.HTTPTimeout))
	} else {
		log.Info().Msg("TADDY_API_KEY is not set, podcast search is disabled")
	}

	if cfg.TelegramBotToken != "" {
		bot, err := delivery.NewBot(cfg.TelegramBotToken)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not create Telegram bot")
		}
		go h.StartTelegramBot(ctx, bot)
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN is not set, bot and Mini App auth are disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(h, cfg.TelegramBotToken),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down server")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("commit", CommitSHA).Msg("Starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
