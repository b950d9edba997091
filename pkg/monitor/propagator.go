package monitor

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/saasguard/o365-monitor/pkg/logger"
)

// Propagator mirrors externally observed deletions back to the remote
// service. The caller's own state transition depends on the remote
// acknowledgment, so the call is synchronous.
type Propagator struct {
	activities ActivityLog
	provider   ClientProvider
	log        *logger.Logger
	tracer     trace.Tracer
}

// NewPropagator creates a deletion propagator
func NewPropagator(activities ActivityLog, provider ClientProvider, log *logger.Logger) *Propagator {
	return &Propagator{
		activities: activities,
		provider:   provider,
		log:        log,
		tracer:     otel.Tracer("deletion-propagator"),
	}
}

// PropagateDelete resolves the owner of a locally-known file, obtains a
// validated client for the workspace and deletes the file from the owner's
// remote drive. It returns true only on confirmed completion; every failed
// intermediate step is logged and yields false without a remote call being
// retried.
func (p *Propagator) PropagateDelete(ctx context.Context, workspaceID uuid.UUID, fileID string) bool {
	ctx, span := p.tracer.Start(ctx, "monitor.propagate_delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("workspace.id", workspaceID.String()),
		attribute.String("file.id", fileID),
	)

	log := p.log.WithContext(ctx).
		WithField("workspace_id", workspaceID.String()).
		WithField("file_id", fileID)

	userID, err := p.activities.FindOwningUserID(ctx, fileID)
	if err != nil {
		span.RecordError(err)
		log.WithError(err).Warn("no owning user found, deletion not propagated")
		return false
	}

	client, err := p.provider.ObtainClient(ctx, workspaceID)
	if err != nil {
		span.RecordError(err)
		log.WithError(err).Error("cannot obtain client, deletion not propagated")
		return false
	}

	if err := client.DeleteItem(ctx, userID, fileID); err != nil {
		span.RecordError(err)
		log.WithError(err).Error("remote deletion failed")
		return false
	}

	log.Info("file deleted from remote drive")
	return true
}
