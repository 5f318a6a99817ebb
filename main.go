package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ticketgate-backend/access"
	"ticketgate-backend/checkin"
	"ticketgate-backend/config"
	"ticketgate-backend/gate"
	"ticketgate-backend/handlers"
	"ticketgate-backend/models"
	"ticketgate-backend/notify"
	"ticketgate-backend/store"
)

func buildNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, func()) {
	var publisher notify.Publisher
	closer := func() {}
	if cfg.RabbitMQURL != "" {
		broker, err := notify.NewBroker(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, check-in events will not be published", "error", err)
		} else {
			publisher = broker
			closer = func() { broker.Close() }
		}
	}

	var mailer notify.Mailer
	if cfg.MailerSendAPIKey != "" {
		mailer = notify.NewMailerSend(cfg.MailerSendAPIKey, cfg.MailerSendFromName, cfg.MailerSendFromEmail, logger)
	}
	return notify.New(publisher, mailer), closer
}

// purgeArchive drops soft-deleted tickets once they leave the restore window.
func purgeArchive(ctx context.Context, st store.Store, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		ids, err := st.PurgeArchivedTickets(ctx, time.Now().Add(-handlers.ArchiveRetention))
		if err != nil && ctx.Err() == nil {
			logger.Error("failed to purge archived tickets", "error", err)
		} else if len(ids) > 0 {
			logger.Info("purged archived tickets", "count", len(ids))
		}
		for _, id := range ids {
			entry := &models.AuditLog{
				ID:        uuid.NewString(),
				UserID:    models.AuditUserSystem,
				Action:    models.AuditPermanentDelete,
				TableName: "tickets",
				RecordID:  id,
				CreatedAt: time.Now(),
			}
			if err := st.RecordAudit(ctx, entry); err != nil {
				logger.Warn("failed to record audit entry", "ticket_id", id, "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// closeIdleGates drops gate sessions nobody has touched for a while.
func closeIdleGates(ctx context.Context, registry *gate.Registry, idle time.Duration) {
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.CloseIdle(time.Now().Add(-idle))
		}
	}
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to the database")
	db := store.NewPostgres(pool)

	if cfg.Migrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
	}

	notifications, closeNotifier := buildNotifier(cfg, logger)
	defer closeNotifier()

	accessGate := access.NewGate(db, access.Config{
		Secret:     []byte(cfg.JWTSecret),
		SessionTTL: cfg.StaffSessionTTL,
	}, logger)
	validator := checkin.NewValidator(db, logger, checkin.WithWriteTimeout(cfg.WriteTimeout))
	registry := gate.NewRegistry(validator, notifications, gate.RegistryConfig{
		FeedCapacity: cfg.FeedCapacity,
	}, logger)
	defer registry.Close()

	go purgeArchive(ctx, db, logger)
	go closeIdleGates(ctx, registry, cfg.StaffSessionTTL)

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	handlers.Routes(router, accessGate,
		handlers.NewCheckinHandler(db, registry, logger),
		handlers.NewEventHandler(db, logger),
		handlers.NewStaffHandler(db, accessGate, registry, notifications, logger),
		db.Ping,
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	accessGate.Wait()
}
