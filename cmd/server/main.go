package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/saasguard/o365-monitor/internal/database"
	"github.com/saasguard/o365-monitor/internal/service"
	"github.com/saasguard/o365-monitor/pkg/config"
	"github.com/saasguard/o365-monitor/pkg/credentials"
	"github.com/saasguard/o365-monitor/pkg/events"
	"github.com/saasguard/o365-monitor/pkg/logger"
	"github.com/saasguard/o365-monitor/pkg/monitor"
)

const serviceVersion = "1.0.0"

func main() {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("o365-monitor v%s\n", serviceVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLogLevel(cfg.Logging.Level),
		Format:  logger.ParseLogFormat(cfg.Logging.Format),
		Output:  os.Stdout,
		Service: "o365-monitor",
		Version: serviceVersion,
	})

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("service exited")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	conn, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close()
	log.Info("database connection established")

	producer, err := events.NewProducer(cfg.Kafka)
	if err != nil {
		return fmt.Errorf("creating event producer: %w", err)
	}
	defer producer.Close()
	log.Info("event producer connected to %s", cfg.Kafka.BootstrapServers)

	// Persistence stores.
	cursors := database.NewCursorStore(conn)
	registry := database.NewUserRegistry(conn)
	credentialStore := database.NewCredentialStore(conn)
	activityLog := database.NewActivityLog(conn)
	workspaces := database.NewWorkspaceStore(conn)

	// Monitor core.
	gate := credentials.NewGate(credentialStore, []byte(cfg.Encryption.Key))
	provider := monitor.NewGateProvider(gate)
	engine := monitor.NewEngine(registry, cursors, log)
	sink := service.NewActivitySink(producer, activityLog, log)
	sweep := monitor.NewSweep(provider, registry, engine, sink, cfg.Monitor.Sweep, log)
	propagator := monitor.NewPropagator(activityLog, provider, log)

	srv := service.NewServer(conn, sweep, propagator, workspaces, log)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Monitor.PollSchedule, func() {
		sweepAllWorkspaces(rootCtx, workspaces, sweep, srv, log)
	})
	if err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", cfg.Monitor.PollSchedule, err)
	}
	scheduler.Start()
	log.Info("sweep scheduler started with schedule %q", cfg.Monitor.PollSchedule)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	}

	// Stop scheduling new sweeps and wait for running ones to finish.
	cronCtx := scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(cfg.Server.ShutdownTimeout):
		log.Warn("running sweeps did not finish within shutdown timeout")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}

	log.Info("service stopped")
	return nil
}

// sweepAllWorkspaces runs one pass over every active workspace. A failing
// workspace is logged and recorded; the others still run.
func sweepAllWorkspaces(ctx context.Context, workspaces *database.WorkspaceStore, sweep *monitor.Sweep, srv *service.Server, log *logger.Logger) {
	ids, err := workspaces.ListActiveIDs(ctx)
	if err != nil {
		log.WithError(err).Error("listing workspaces for scheduled sweep failed")
		return
	}

	for _, workspaceID := range ids {
		if ctx.Err() != nil {
			return
		}
		result, err := sweep.Run(ctx, workspaceID)
		srv.RecordSweep(workspaceID, result, err)
		if err != nil {
			log.WithError(err).Error("scheduled sweep failed for workspace %s", workspaceID)
			continue
		}
		log.WithField("workspace_id", workspaceID.String()).
			Info("sweep completed: %d users, %d events published, %d skipped",
				result.UsersProcessed, result.EventsPublished, result.EventsSkipped)
	}
}
