package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/consultationhouse/site/backend/internal/config"
	"github.com/consultationhouse/site/backend/internal/handler"
	"github.com/consultationhouse/site/backend/internal/model/persona"
	"github.com/consultationhouse/site/backend/internal/service/ai"
	"github.com/consultationhouse/site/backend/internal/service/chat"
	"github.com/consultationhouse/site/backend/internal/service/events"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogger(cfg.Log)

	personaStore, err := persona.LoadStore(cfg.Persona.File)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load personas")
	}
	log.Info().Str("file", cfg.Persona.File).Int("count", len(personaStore.List())).Msg("personas loaded")

	factory, err := ai.NewClientFactory(cfg.AI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure AI backend")
	}
	if cfg.AI.Provider == config.ProviderGemini && cfg.AI.GeminiAPIKey == "" {
		log.Warn().Msg("API_KEY not set, widgets will answer with the fallback message")
	}

	bus, err := events.NewBus(cfg.Events, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event bus")
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn().Err(err).Msg("close event bus")
		}
	}()

	chatSvc := chat.NewService(personaStore, factory, chat.Options{
		Model:       cfg.AI.ModelName(),
		MaxInFlight: cfg.Widget.MaxInFlight,
		Greeting:    cfg.Widget.Greeting,
		Events:      bus,
	})

	router := handler.NewRouter(personaStore, chatSvc, bus)

	if err := startServer(ctx, cfg.Server, router); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	// Replies still owed to submitted messages land before the bus closes.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Widget.ShutdownGrace)
	defer cancel()
	if err := chatSvc.Drain(drainCtx); err != nil {
		log.Warn().Err(err).Msg("background sends still running at shutdown")
	}
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("consultation house backend listening")
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
