// Package models defines the persisted entities of the monitor service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Workspace is one customer organization whose remote drives are monitored
type Workspace struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name      string    `gorm:"unique;not null;index" json:"name"`
	Status    string    `gorm:"not null;default:'active'" json:"status"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	MonitoredUsers []MonitoredUser      `gorm:"foreignKey:WorkspaceID" json:"monitored_users,omitempty"`
	Credential     *WorkspaceCredential `gorm:"foreignKey:WorkspaceID" json:"-"`
}

// WorkspaceCredential holds the workspace's encrypted bearer token as
// base64(nonce || AES-GCM ciphertext). The monitor reads it, never rotates it.
type WorkspaceCredential struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	WorkspaceID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"workspace_id"`
	EncryptedToken string    `gorm:"type:text;not null" json:"-"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

// MonitoredUser is a remote user account this organization has opted to
// monitor. Provisioned externally; read-only to the sync engine.
type MonitoredUser struct {
	ID          int64     `gorm:"primary_key;autoIncrement" json:"id"`
	UserID      string    `gorm:"not null;uniqueIndex:idx_monitored_users_workspace_user,priority:2" json:"user_id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_monitored_users_workspace_user,priority:1;index" json:"workspace_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`

	Cursor *DeltaCursor `gorm:"foreignKey:MonitoredUserID" json:"-"`
}

// DeltaCursor stores the opaque continuation token of a monitored user's
// change feed. At most one row per user; overwritten on every advance.
type DeltaCursor struct {
	ID              int64     `gorm:"primary_key;autoIncrement" json:"id"`
	MonitoredUserID int64     `gorm:"not null;uniqueIndex" json:"monitored_user_id"`
	Token           string    `gorm:"type:text;not null" json:"token"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

// Activity is one recorded drive event, written after the classified event
// has been handed to the downstream pipeline. The deletion propagator reads
// it backwards to find the uploading user of a file.
type Activity struct {
	ID              int64     `gorm:"primary_key;autoIncrement" json:"id"`
	MonitoredUserID int64     `gorm:"not null;index" json:"monitored_user_id"`
	RemoteFileID    string    `gorm:"not null;index" json:"remote_file_id"`
	EventType       string    `gorm:"not null;index" json:"event_type"`
	FileName        string    `json:"file_name,omitempty"`
	FileSize        int64     `json:"file_size"`
	EventTimestamp  time.Time `gorm:"not null" json:"event_timestamp"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`

	User *MonitoredUser `gorm:"foreignKey:MonitoredUserID" json:"-"`
}

// Activity event types. The change feed carries no move marker; a moved
// file arrives as a change of the moved item.
const (
	EventTypeUpload = "file_upload"
	EventTypeChange = "file_change"
	EventTypeDelete = "file_delete"
)
