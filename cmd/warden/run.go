package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queue-warden/internal/analytics"
	"queue-warden/internal/bot"
	"queue-warden/internal/config"
	"queue-warden/internal/expiry"
	"queue-warden/internal/gateway"
	"queue-warden/internal/jobs"
	"queue-warden/internal/metrics"
	"queue-warden/internal/moderation"
	"queue-warden/internal/modules/audit"
	"queue-warden/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and start the expiry loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := config.BuildLogger(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Error("storage init failed", zap.Error(err))
		return err
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Error("migrations failed", zap.Error(err))
		return err
	}

	collector := metrics.New()
	auditLogger := audit.NewLogger(store, logger, cfg.GuildID)
	auditLogger.SetNotifier(collector.ObserveAudit)

	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		logger.Error("discord session init failed", zap.Error(err))
		return err
	}
	guild := gateway.FromSession(session, cfg.GuildID, gateway.Config{
		RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
		Burst:             cfg.Gateway.Burst,
	}, collector)

	engine := moderation.New(moderationConfig(cfg), store, guild, auditLogger, collector, logger.Named("moderation"))
	botSvc := bot.New(cfg, logger.Named("bot"), session, engine, analytics.New(store))
	if err := botSvc.Start(ctx); err != nil {
		logger.Error("bot start failed", zap.Error(err))
		return err
	}
	logger.Info("bot started", zap.String("guild_id", cfg.GuildID))

	group, groupCtx := errgroup.WithContext(ctx)
	supervisor := jobs.NewSupervisor(groupCtx, logger.Named("jobs"))
	reconciler := expiry.New(expiry.Config{
		ServerInterval: cfg.Expiry.ServerInterval,
		ScrimInterval:  cfg.Expiry.ScrimInterval,
	}, store, guild, engine, collector, logger.Named("expiry"))
	if err := reconciler.Register(supervisor); err != nil {
		return err
	}
	if err := supervisor.Go("audit-retention", jobs.Every(24*time.Hour, func(ctx context.Context) {
		removed, err := store.CleanupAuditLogs(ctx, cfg.RetentionDays)
		if err != nil {
			logger.Warn("audit retention failed", zap.Error(err))
			return
		}
		logger.Info("audit retention applied", zap.Int64("removed", removed), zap.Int("retention_days", cfg.RetentionDays))
	})); err != nil {
		return err
	}

	var server *http.Server
	if cfg.Health.Enabled {
		server = healthServer(cfg.Health.Addr, store, collector)
		group.Go(func() error {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if server != nil {
			_ = server.Shutdown(shutdownCtx)
		}
		botSvc.Close()
		return nil
	})

	err = group.Wait()
	supervisor.Wait()
	return err
}

func healthServer(addr string, store *storage.Store, collector *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", collector.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func moderationConfig(cfg config.Config) moderation.Config {
	return moderation.Config{
		BannedRoleID:       cfg.Moderation.BannedRoleID,
		FrozenRoleID:       cfg.Moderation.FrozenRoleID,
		MemberRoleID:       cfg.Moderation.MemberRoleID,
		LogChannelID:       cfg.Moderation.LogChannelID,
		ScrimLogChannelID:  cfg.Moderation.ScrimLogChannelID,
		FrozenChannelID:    cfg.Moderation.FrozenChannelID,
		DefaultScrimBan:    cfg.Moderation.DefaultScrimBan,
		ServerAppeal:       cfg.Moderation.ServerAppeal,
		ScrimAppeal:        cfg.Moderation.ScrimAppeal,
		FrozenInstructions: cfg.Moderation.FrozenInstructions,
		ActionColor:        cfg.EmbedColors.Action,
		WarningColor:       cfg.EmbedColors.Warning,
	}
}
