package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/blockedby/herald/internal/api"
	"github.com/blockedby/herald/internal/broadcast"
	"github.com/blockedby/herald/internal/config"
	"github.com/blockedby/herald/internal/control"
	"github.com/blockedby/herald/internal/discovery"
	"github.com/blockedby/herald/internal/events"
	"github.com/blockedby/herald/internal/logger"
	"github.com/blockedby/herald/internal/profile"
	"github.com/blockedby/herald/internal/telegram"
)

func main() {
	// 1. Load config
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Int64("owner_id", cfg.OwnerID).Msg("starting broadcast orchestrator")

	// 3. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 4. Connect to NATS (optional, publishing disabled when unreachable)
	var discEvents discovery.EventPublisher
	var cycleEvents broadcast.EventPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		} else {
			defer nc.Close()
			pub := events.NewPublisher(nc, log)
			discEvents = pub
			cycleEvents = pub
		}
	}

	// 5. Wire the core services
	registry := profile.NewRegistry(cfg.OwnerID)
	engine := discovery.NewEngine(discEvents, log)
	scheduler := broadcast.NewScheduler(cycleEvents, log)
	dialer := telegram.NewDialer(log)
	svc := control.NewService(registry, engine, scheduler, dialer, log)

	// 6. Apply the seed file for the owner profile, if configured
	if err := applySeed(ctx, cfg, svc, log); err != nil {
		log.Fatal().Err(err).Msg("failed to apply seed file")
	}

	// 7. Start HTTP server
	handler := api.NewHandler(svc)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: api.NewRouter(handler),
	}

	log.Info().Int("port", cfg.HTTPPort).Msg("starting http server")
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// 8. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down services...")

	svc.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}

// applySeed preloads the owner's profile from the optional YAML seed file.
// Source channels are registered before any account exists, so they are only
// joined once the first session comes online.
func applySeed(ctx context.Context, cfg *config.Config, svc *control.Service, log *logger.Logger) error {
	seed, err := config.LoadSeed(cfg.SeedFile)
	if err != nil {
		return err
	}
	if seed == nil {
		return nil
	}

	for _, ch := range seed.SourceChannels {
		if err := svc.AddSourceChannel(ctx, cfg.OwnerID, ch); err != nil {
			return fmt.Errorf("seed source channel %s: %w", ch, err)
		}
	}
	for _, msg := range seed.Messages {
		if err := svc.AddMessage(cfg.OwnerID, msg); err != nil {
			return fmt.Errorf("seed message: %w", err)
		}
	}
	if seed.Timer.Mode != "" {
		if err := svc.SetTimerMode(cfg.OwnerID, seed.Timer.Mode); err != nil {
			return fmt.Errorf("seed timer mode: %w", err)
		}
	}
	if seed.Timer.IntervalMinutes > 0 {
		if err := svc.SetTimerInterval(cfg.OwnerID, seed.Timer.IntervalMinutes); err != nil {
			return fmt.Errorf("seed timer interval: %w", err)
		}
	}

	log.Info().
		Int("source_channels", len(seed.SourceChannels)).
		Int("messages", len(seed.Messages)).
		Msg("seed applied")
	return nil
}
