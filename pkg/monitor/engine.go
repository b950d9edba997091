package monitor

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/saasguard/o365-monitor/pkg/graph"
	"github.com/saasguard/o365-monitor/pkg/logger"
)

// Engine drives one user's delta synchronization: it loads the stored
// cursor, retrieves the incremental change set, classifies every item and
// advances the cursor once the full set has been classified.
type Engine struct {
	registry UserRegistry
	cursors  CursorStore
	log      *logger.Logger
	tracer   trace.Tracer
}

// NewEngine creates a synchronization engine
func NewEngine(registry UserRegistry, cursors CursorStore, log *logger.Logger) *Engine {
	return &Engine{
		registry: registry,
		cursors:  cursors,
		log:      log,
		tracer:   otel.Tracer("delta-engine"),
	}
}

// Synchronize retrieves and classifies the changes of one monitored user.
//
// A user with no stored cursor is cold-started: the initial delta call is
// used purely to seed the cursor and the returned result is empty. On an
// incremental pass the stored cursor is replayed, every page of the change
// set is drained and classified, and only then is the new continuation
// token persisted. A failure anywhere before that leaves the cursor
// untouched so the next poll replays the same changes.
func (e *Engine) Synchronize(ctx context.Context, userID string, client DirectoryClient) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "monitor.synchronize")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	log := e.log.WithContext(ctx).WithField("user_id", userID)

	internalID, err := e.registry.ResolveInternalID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrUnknownUser) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
		}
		return nil, fmt.Errorf("resolving user %s: %w", userID, err)
	}

	cursor, found, err := e.cursors.Get(ctx, internalID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("loading cursor: %w", err)
	}

	if !found {
		return e.coldStart(ctx, span, log, userID, internalID, client)
	}

	items, token, err := e.drainDelta(ctx, client, func(ctx context.Context) (*graph.DeltaPage, error) {
		return client.ContinueDelta(ctx, userID, cursor)
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetching delta changes: %w", err)
	}

	if len(items) == 0 {
		log.Info("no changes found")
	}

	result := e.classifyAll(ctx, log, userID, client, items)

	if err := e.cursors.Upsert(ctx, internalID, token); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("advancing cursor: %w", err)
	}

	span.SetAttributes(
		attribute.Int("changes.count", len(items)),
		attribute.Int("events.count", len(result)),
	)
	return result, nil
}

// coldStart seeds the cursor from an initial delta call. No classification
// happens here: the initial snapshot only establishes "now".
func (e *Engine) coldStart(ctx context.Context, span trace.Span, log *logger.Logger, userID string, internalID int64, client DirectoryClient) (Result, error) {
	_, token, err := e.drainDelta(ctx, client, func(ctx context.Context) (*graph.DeltaPage, error) {
		return client.StartDelta(ctx, userID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("initial delta call: %w", err)
	}

	if err := e.cursors.Upsert(ctx, internalID, token); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("seeding cursor: %w", err)
	}

	log.Info("seeded delta cursor")
	span.SetAttributes(attribute.Bool("cold_start", true))
	return Result{}, nil
}

// drainDelta runs a delta query to completion, following next links until
// the page carrying the delta link, and returns all items plus the new
// continuation token.
func (e *Engine) drainDelta(ctx context.Context, client DirectoryClient, first func(context.Context) (*graph.DeltaPage, error)) ([]graph.DriveItem, string, error) {
	page, err := first(ctx)
	if err != nil {
		return nil, "", err
	}

	items := append([]graph.DriveItem(nil), page.Value...)
	for page.NextLink != "" {
		page, err = client.ContinueDeltaURL(ctx, page.NextLink)
		if err != nil {
			return nil, "", err
		}
		items = append(items, page.Value...)
	}

	if page.DeltaToken == "" {
		return nil, "", errors.New("delta response carried no continuation token")
	}
	return items, page.DeltaToken, nil
}

// classifyAll classifies every drained item. Folders are skipped. Deleted
// items keep their raw change record: the remote service answers not-found
// for them, so a detail fetch is meaningless. For uploads and changes the
// full item detail is resolved; when that fails the change record itself
// stands in, so the event is still surfaced without full metadata.
func (e *Engine) classifyAll(ctx context.Context, log *logger.Logger, userID string, client DirectoryClient, items []graph.DriveItem) Result {
	result := make(Result, 0, len(items))
	for i := range items {
		item := &items[i]

		eventType := Classify(item)
		switch eventType {
		case EventIgnored:
			log.Debug("skipping folder %s", item.ID)
			continue
		case EventDelete:
			result = append(result, ClassifiedEvent{Item: item, Type: eventType})
		case EventUpload, EventChange:
			detail, err := client.GetItem(ctx, userID, item.ID)
			if err != nil || detail == nil {
				log.WithError(err).Warn("item detail unavailable for %s", item.ID)
				detail = item
			}
			result = append(result, ClassifiedEvent{Item: detail, Type: eventType})
		default:
			log.Warn("item %s has no timestamps, classification unknown", item.ID)
			result = append(result, ClassifiedEvent{Item: item, Type: EventUnknown})
		}
	}
	return result
}
