package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/itam-hq/be-procurement/internal/client"
	"github.com/itam-hq/be-procurement/internal/handler"
	"github.com/itam-hq/be-procurement/internal/platform/config"
	"github.com/itam-hq/be-procurement/internal/platform/database"
	"github.com/itam-hq/be-procurement/internal/platform/logger"
	"github.com/itam-hq/be-procurement/internal/repository"
	"github.com/itam-hq/be-procurement/internal/service"
	"github.com/itam-hq/be-procurement/internal/store/memory"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting procurement service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores: postgres when configured, otherwise seeded in-memory stores so
	// local development works without infrastructure.
	var (
		proposalStore service.ProposalStore
		userStore     service.UserStore
		permStore     service.PermissionStore
		auditStore    service.AuditStore
		trackingStore service.TrackingStore
	)

	if cfg.Database.Host != "" {
		db, err := database.New(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.Database,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("Database connection established")

		proposalStore = repository.NewProposalRepository(db)
		permRepo := repository.NewPermissionRepository(db)
		userStore = permRepo
		permStore = permRepo
		auditStore = repository.NewAuditRepository(db)
		trackingStore = repository.NewTrackingRepository(db)
	} else {
		log.Warn().Msg("No database configured; using in-memory stores with dev seed data")
		identity := memory.NewIdentityStore()
		memory.SeedDev(identity)
		proposalStore = memory.NewProposalStore()
		userStore = identity
		permStore = identity
		auditStore = memory.NewAuditStore()
		trackingStore = memory.NewTrackingStore()
	}

	// The notification bus is optional; without it workflow events are
	// simply not published.
	var notifier service.Notifier
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name))
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to NATS; notifications disabled")
		} else {
			defer nc.Close()
			notifier = client.NewNotificationPublisher(nc, log)
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}

	permissions := service.NewPermissionService(userStore, permStore, log)
	audit := service.NewAuditService(auditStore, log)
	proposals := service.NewProposalService(proposalStore, permissions, audit, log)
	workflow := service.NewWorkflowService(proposalStore, userStore, permissions, audit, notifier, service.WorkflowConfig{
		StageSLA:       cfg.Workflow.StageSLA,
		FulfillmentSLA: cfg.Workflow.FulfillmentSLA,
	}, log)
	tracking := service.NewTrackingService(trackingStore, proposalStore)

	httpHandler := handler.NewHTTPHandler(proposals, workflow, tracking, audit, permissions, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.NewRouter(httpHandler, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
