// Package service wires the monitor core to its collaborators: the Kafka
// producer downstream and the activity trail in the database.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/saasguard/o365-monitor/internal/database"
	"github.com/saasguard/o365-monitor/internal/database/models"
	"github.com/saasguard/o365-monitor/pkg/events"
	"github.com/saasguard/o365-monitor/pkg/logger"
	"github.com/saasguard/o365-monitor/pkg/monitor"
)

// ActivitySink publishes classified events to Kafka and records them in the
// activity trail. The trail write happens after the broker acknowledgment:
// an unpublished event must not become a visible activity.
type ActivitySink struct {
	producer   *events.Producer
	activities *database.ActivityLog
	log        *logger.Logger
}

// NewActivitySink creates a sink over the given producer and activity log
func NewActivitySink(producer *events.Producer, activities *database.ActivityLog, log *logger.Logger) *ActivitySink {
	return &ActivitySink{
		producer:   producer,
		activities: activities,
		log:        log,
	}
}

// PublishActivity forwards one classified event downstream
func (s *ActivitySink) PublishActivity(ctx context.Context, activity monitor.Activity) error {
	eventType, activityType, err := mapEventType(activity.Type)
	if err != nil {
		return err
	}

	item := activity.Item
	event := &events.FileActivityEvent{
		BaseEvent: events.NewBaseEvent(eventType, activity.WorkspaceID),
		Data: events.FileActivityData{
			FileID:   item.ID,
			FileName: item.Name,
			Size:     item.Size,
			UserID:   activity.UserID,
			WebURL:   item.WebURL,
		},
	}
	if item.File != nil {
		event.Data.MimeType = item.File.MimeType
		if item.File.Hashes != nil {
			event.Data.SHA1Hash = item.File.Hashes.SHA1Hash
		}
	}
	if created, ok := item.CreatedTime(); ok {
		event.Data.CreatedAt = created
	}
	if modified, ok := item.ModifiedTime(); ok {
		event.Data.ModifiedAt = modified
	}

	if err := s.producer.PublishFileActivity(ctx, event); err != nil {
		return fmt.Errorf("publishing activity: %w", err)
	}

	eventTS := event.Data.ModifiedAt
	if eventTS.IsZero() {
		eventTS = time.Now().UTC()
	}
	if err := s.activities.Record(ctx, activity.MonitoredUserID, item.ID, activityType, item.Name, item.Size, eventTS); err != nil {
		// The event is already downstream; a missing trail row only
		// degrades ownership lookups, so it must not fail the batch.
		s.log.WithError(err).Error("recording activity for item %s failed", item.ID)
	}
	return nil
}

func mapEventType(t monitor.EventType) (eventType, activityType string, err error) {
	switch t {
	case monitor.EventUpload:
		return events.EventFileUpload, models.EventTypeUpload, nil
	case monitor.EventChange:
		return events.EventFileChange, models.EventTypeChange, nil
	case monitor.EventDelete:
		return events.EventFileDelete, models.EventTypeDelete, nil
	default:
		return "", "", fmt.Errorf("event type %v cannot be published", t)
	}
}
