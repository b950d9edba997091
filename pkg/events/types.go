// Package events defines the event schema and Kafka producer through which
// classified drive activity reaches the downstream scanning pipeline.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types published by the monitor. The remote change feed carries no
// move marker, so moves surface as change events.
const (
	EventFileUpload = "file.upload"
	EventFileChange = "file.change"
	EventFileDelete = "file.delete"
)

// Kafka topics. File deletions ride their own topic so the deletion
// consumers do not have to filter the activity stream.
const (
	TopicFileActivity = "file-activity"
	TopicFileDeleted  = "file-deleted"
)

// BaseEvent provides common fields for all events published by the monitor
type BaseEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	Time        time.Time `json:"time"`
	WorkspaceID string    `json:"workspace_id"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// NewBaseEvent creates a new base event with generated ID and current timestamp
func NewBaseEvent(eventType string, workspaceID uuid.UUID) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Source:      "o365-monitor",
		Time:        time.Now().UTC(),
		WorkspaceID: workspaceID.String(),
	}
}

// FileActivityEvent is one classified change observed on a monitored drive
type FileActivityEvent struct {
	BaseEvent
	Data FileActivityData `json:"data"`
}

// FileActivityData carries the item detail available at classification
// time. For deletions only the identifier is guaranteed; the remote service
// no longer serves detail for a deleted item.
type FileActivityData struct {
	FileID     string    `json:"file_id"`
	FileName   string    `json:"file_name,omitempty"`
	Size       int64     `json:"size"`
	UserID     string    `json:"user_id"`
	MimeType   string    `json:"mime_type,omitempty"`
	WebURL     string    `json:"web_url,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
	SHA1Hash   string    `json:"sha1_hash,omitempty"`
}

// Topic returns the Kafka topic this event belongs on
func (e *FileActivityEvent) Topic() string {
	if e.Type == EventFileDelete {
		return TopicFileDeleted
	}
	return TopicFileActivity
}
