package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/saasguard/o365-monitor/pkg/graph"
	"github.com/saasguard/o365-monitor/pkg/logger"
)

// SweepConfig bounds the per-workspace sweep
type SweepConfig struct {
	// MaxConcurrentUsers caps in-flight synchronize tasks per workspace,
	// keeping the sweep inside the remote API's throttling envelope
	MaxConcurrentUsers int `yaml:"max_concurrent_users"`
}

// DefaultSweepConfig returns default sweep configuration
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{MaxConcurrentUsers: 4}
}

// Sweep runs one synchronization pass over every monitored user of a
// workspace and forwards the classified events downstream. One user's
// failure never aborts the others.
type Sweep struct {
	provider ClientProvider
	registry UserRegistry
	engine   *Engine
	sink     EventSink
	config   SweepConfig
	log      *logger.Logger
	tracer   trace.Tracer
}

// NewSweep creates a workspace sweep
func NewSweep(provider ClientProvider, registry UserRegistry, engine *Engine, sink EventSink, config SweepConfig, log *logger.Logger) *Sweep {
	if config.MaxConcurrentUsers <= 0 {
		config.MaxConcurrentUsers = DefaultSweepConfig().MaxConcurrentUsers
	}
	return &Sweep{
		provider: provider,
		registry: registry,
		engine:   engine,
		sink:     sink,
		config:   config,
		log:      log,
		tracer:   otel.Tracer("monitor-sweep"),
	}
}

// SweepResult summarizes one workspace pass
type SweepResult struct {
	UsersProcessed  int
	UsersFailed     int
	EventsPublished int
	EventsSkipped   int
}

// Run synchronizes every monitored user of the workspace with bounded
// concurrency. The gate is consulted once; if no validated client can be
// obtained the whole pass fails closed.
func (s *Sweep) Run(ctx context.Context, workspaceID uuid.UUID) (*SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "monitor.sweep")
	defer span.End()
	span.SetAttributes(attribute.String("workspace.id", workspaceID.String()))

	log := s.log.WithContext(ctx).WithField("workspace_id", workspaceID.String())

	client, err := s.provider.ObtainClient(ctx, workspaceID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("obtaining client: %w", err)
	}

	userIDs, err := s.registry.ListUserIDs(ctx, workspaceID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("listing monitored users: %w", err)
	}
	if len(userIDs) == 0 {
		log.Warn("no monitored users in workspace")
		return &SweepResult{}, nil
	}

	type userOutcome struct {
		userID string
		result Result
		err    error
	}

	outcomes := make([]userOutcome, len(userIDs))
	sem := make(chan struct{}, s.config.MaxConcurrentUsers)
	var wg sync.WaitGroup

	for i, userID := range userIDs {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := s.engine.Synchronize(ctx, userID, client)
			outcomes[i] = userOutcome{userID: userID, result: result, err: err}
		}(i, userID)
	}
	wg.Wait()

	sweepResult := &SweepResult{}
	for _, outcome := range outcomes {
		if outcome.err != nil {
			sweepResult.UsersFailed++
			log.WithError(outcome.err).Error("synchronization failed for user %s", outcome.userID)
			continue
		}
		sweepResult.UsersProcessed++
		s.publish(ctx, log, workspaceID, outcome.userID, outcome.result, sweepResult)
	}

	span.SetAttributes(
		attribute.Int("users.processed", sweepResult.UsersProcessed),
		attribute.Int("users.failed", sweepResult.UsersFailed),
		attribute.Int("events.published", sweepResult.EventsPublished),
	)
	return sweepResult, nil
}

func (s *Sweep) publish(ctx context.Context, log *logger.Logger, workspaceID uuid.UUID, userID string, result Result, sweepResult *SweepResult) {
	internalID, err := s.registry.ResolveInternalID(ctx, userID)
	if err != nil {
		log.WithError(err).Error("cannot resolve user %s for publishing", userID)
		sweepResult.EventsSkipped += len(result)
		return
	}

	for _, event := range result {
		if event.Type == EventUnknown {
			log.Warn("skipping unclassifiable item %s for user %s", event.Item.ID, userID)
			sweepResult.EventsSkipped++
			continue
		}

		activity := Activity{
			WorkspaceID:     workspaceID,
			UserID:          userID,
			MonitoredUserID: internalID,
			Item:            event.Item,
			Type:            event.Type,
		}
		if err := s.sink.PublishActivity(ctx, activity); err != nil {
			log.WithError(err).Error("publishing %s event for item %s failed", event.Type, event.Item.ID)
			sweepResult.EventsSkipped++
			continue
		}
		sweepResult.EventsPublished++
	}
}

// ListDriveSnapshot lists the top-level drive contents of every monitored
// user of a workspace, used for onboarding sweeps independent of the delta
// cursor. A user without a provisioned drive is logged and skipped.
func (s *Sweep) ListDriveSnapshot(ctx context.Context, workspaceID uuid.UUID) ([]graph.DriveItem, error) {
	ctx, span := s.tracer.Start(ctx, "monitor.list_drive_snapshot")
	defer span.End()
	span.SetAttributes(attribute.String("workspace.id", workspaceID.String()))

	log := s.log.WithContext(ctx).WithField("workspace_id", workspaceID.String())

	client, err := s.provider.ObtainClient(ctx, workspaceID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("obtaining client: %w", err)
	}

	userIDs, err := s.registry.ListUserIDs(ctx, workspaceID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("listing monitored users: %w", err)
	}

	var items []graph.DriveItem
	for _, userID := range userIDs {
		children, err := client.ListRootChildren(ctx, userID)
		if err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				log.Warn("no drive provisioned for user %s", userID)
				continue
			}
			log.WithError(err).Error("listing files for user %s failed", userID)
			continue
		}
		items = append(items, children...)
	}

	span.SetAttributes(attribute.Int("items.count", len(items)))
	return items, nil
}

// ListSiteSnapshot lists the top-level drive contents of every SharePoint
// site visible to the workspace credential. Per-site failures are isolated.
func (s *Sweep) ListSiteSnapshot(ctx context.Context, workspaceID uuid.UUID) ([]graph.DriveItem, error) {
	ctx, span := s.tracer.Start(ctx, "monitor.list_site_snapshot")
	defer span.End()
	span.SetAttributes(attribute.String("workspace.id", workspaceID.String()))

	log := s.log.WithContext(ctx).WithField("workspace_id", workspaceID.String())

	client, err := s.provider.ObtainClient(ctx, workspaceID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("obtaining client: %w", err)
	}

	sites, err := client.ListSites(ctx)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			log.Warn("no sites visible to workspace credential")
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("listing sites: %w", err)
	}

	var items []graph.DriveItem
	for _, site := range sites {
		children, err := client.ListSiteRootChildren(ctx, site.ID)
		if err != nil {
			log.WithError(err).Error("listing files for site %s failed", site.ID)
			continue
		}
		items = append(items, children...)
	}

	span.SetAttributes(attribute.Int("items.count", len(items)))
	return items, nil
}
