package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/evidra/internal/api/ws"
	"github.com/gosuda/evidra/internal/auth"
	"github.com/gosuda/evidra/internal/config"
	"github.com/gosuda/evidra/internal/domain"
	"github.com/gosuda/evidra/internal/evidence"
	evidraslack "github.com/gosuda/evidra/internal/messenger/slack"
	"github.com/gosuda/evidra/internal/notify"
	"github.com/gosuda/evidra/internal/registry"
	"github.com/gosuda/evidra/internal/secrets"
	"github.com/gosuda/evidra/internal/server"
	"github.com/gosuda/evidra/internal/store/postgres"
	redisstore "github.com/gosuda/evidra/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	setupLogging(cfg.Log)

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	if err := ensureTenant(ctx, store.Tenants(), cfg.Bootstrap); err != nil {
		return err
	}

	// Connect to Redis.
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	authSvc := auth.NewService(store.Users(), cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	hub := ws.NewHub(pubsub, originHosts(cfg.Server.CORSOrigins)...)

	opts := []evidence.Option{
		evidence.WithPublisher(hub),
		evidence.WithNotifier(buildNotifier(cfg.Slack)),
	}

	var metrics *prometheus.Registry
	if cfg.Metrics.Enabled {
		metrics = prometheus.NewRegistry()
		metrics.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, evidence.WithMetrics(evidence.NewMetrics(metrics)))
	}

	key, err := cfg.Evidence.Key()
	if err != nil {
		return err
	}
	if key != nil {
		vault, vaultErr := secrets.NewVault(key)
		if vaultErr != nil {
			return vaultErr
		}
		opts = append(opts, evidence.WithCipher(vault))
		log.Info().Msg("attachment encryption at rest enabled")
	}

	evidenceSvc := evidence.NewService(store, evidence.Config{
		MaxPayloadBytes: cfg.Evidence.MaxPayloadBytes,
		MaxFileBytes:    cfg.Evidence.MaxFileBytes,
		Placeholders:    cfg.Evidence.Placeholders,
	}, opts...)

	registrySvc := registry.NewService(store, registry.WithPublisher(hub))

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(ctx, cfg, store, pubsub, server.Services{
		Auth:     authSvc,
		Evidence: evidenceSvc,
		Registry: registrySvc,
		Hub:      hub,
		Metrics:  metrics,
	})

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

// buildNotifier routes work item alerts to Slack when a bot token is set.
// Without one the notifier only logs.
func buildNotifier(cfg config.SlackConfig) *notify.Notifier {
	messengers := notify.NewRegistry()
	if cfg.BotToken == "" {
		return notify.New(messengers)
	}

	m := evidraslack.NewSlackMessenger(slacklib.New(cfg.BotToken))
	messengers.Register(m)
	log.Info().Str("channel", cfg.ReviewChannel).Msg("Slack work item notifications enabled")

	return notify.New(messengers, notify.Route{Platform: m.Platform(), ChannelID: cfg.ReviewChannel})
}

// ensureTenant creates the bootstrap tenant if it does not exist yet.
func ensureTenant(ctx context.Context, tenants domain.TenantRepository, cfg config.BootstrapConfig) error {
	if cfg.TenantSlug == "" {
		return nil
	}

	_, err := tenants.GetBySlug(ctx, cfg.TenantSlug)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("bootstrap tenant: %w", err)
	}

	name := cfg.TenantName
	if name == "" {
		name = cfg.TenantSlug
	}
	now := time.Now().UTC()
	t := &domain.Tenant{
		ID:        uuid.New(),
		Name:      name,
		Slug:      cfg.TenantSlug,
		Settings:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tenants.Create(ctx, t); err != nil && !errors.Is(err, domain.ErrDuplicate) {
		return fmt.Errorf("bootstrap tenant: %w", err)
	}

	log.Info().Str("slug", t.Slug).Str("tenant_id", t.ID.String()).Msg("bootstrap tenant created")
	return nil
}
