package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/saasguard/o365-monitor/internal/database/models"
	"github.com/saasguard/o365-monitor/pkg/monitor"
)

var (
	// ErrUserNotFound indicates the user is not registered for monitoring.
	// It matches monitor.ErrUnknownUser so the engine can tell an
	// unregistered user from a registry failure.
	ErrUserNotFound = fmt.Errorf("database: monitored user not found: %w", monitor.ErrUnknownUser)
	// ErrCredentialNotFound indicates no stored credential for the workspace
	ErrCredentialNotFound = errors.New("database: workspace credential not found")
	// ErrOwnerNotFound indicates no upload activity references the file
	ErrOwnerNotFound = errors.New("database: no owning user recorded for file")
)

// CursorStore persists one continuation token per monitored user
type CursorStore struct {
	conn *Connection
}

// NewCursorStore creates a cursor store over the given connection
func NewCursorStore(conn *Connection) *CursorStore {
	return &CursorStore{conn: conn}
}

// Get returns the stored continuation token for a monitored user. The
// second return is false when the user has never completed a delta call,
// which is a valid state, not an error.
func (s *CursorStore) Get(ctx context.Context, monitoredUserID int64) (string, bool, error) {
	var cursor models.DeltaCursor
	err := s.conn.db.WithContext(ctx).
		Where("monitored_user_id = ?", monitoredUserID).
		First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("loading cursor: %w", err)
	}
	return cursor.Token, true, nil
}

// Upsert stores the continuation token for a monitored user, atomically
// replacing any previous value. The unique index on monitored_user_id
// guarantees at most one row per user.
func (s *CursorStore) Upsert(ctx context.Context, monitoredUserID int64, token string) error {
	cursor := models.DeltaCursor{
		MonitoredUserID: monitoredUserID,
		Token:           token,
	}
	err := s.conn.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "monitored_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
		}).
		Create(&cursor).Error
	if err != nil {
		return fmt.Errorf("upserting cursor: %w", err)
	}
	return nil
}

// UserRegistry reads the externally provisioned monitored-user roster
type UserRegistry struct {
	conn *Connection
}

// NewUserRegistry creates a registry over the given connection
func NewUserRegistry(conn *Connection) *UserRegistry {
	return &UserRegistry{conn: conn}
}

// ListUserIDs returns the remote user ids monitored within a workspace
func (r *UserRegistry) ListUserIDs(ctx context.Context, workspaceID uuid.UUID) ([]string, error) {
	var ids []string
	err := r.conn.db.WithContext(ctx).
		Model(&models.MonitoredUser{}).
		Where("workspace_id = ?", workspaceID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing monitored users: %w", err)
	}
	return ids, nil
}

// ResolveInternalID maps a remote user id to the internal numeric identity
// that keys the cursor and activity tables
func (r *UserRegistry) ResolveInternalID(ctx context.Context, userID string) (int64, error) {
	var user models.MonitoredUser
	err := r.conn.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("resolving monitored user: %w", err)
	}
	return user.ID, nil
}

// CredentialStore reads the encrypted workspace bearer token
type CredentialStore struct {
	conn *Connection
}

// NewCredentialStore creates a credential store over the given connection
func NewCredentialStore(conn *Connection) *CredentialStore {
	return &CredentialStore{conn: conn}
}

// FindEncryptedToken returns the workspace's stored ciphertext
func (s *CredentialStore) FindEncryptedToken(ctx context.Context, workspaceID uuid.UUID) (string, error) {
	var cred models.WorkspaceCredential
	err := s.conn.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrCredentialNotFound
		}
		return "", fmt.Errorf("loading workspace credential: %w", err)
	}
	return cred.EncryptedToken, nil
}

// ActivityLog records classified events and answers ownership lookups
type ActivityLog struct {
	conn *Connection
}

// NewActivityLog creates an activity log over the given connection
func NewActivityLog(conn *Connection) *ActivityLog {
	return &ActivityLog{conn: conn}
}

// Record appends one activity row for a published event
func (l *ActivityLog) Record(ctx context.Context, monitoredUserID int64, remoteFileID, eventType, fileName string, fileSize int64, eventTS time.Time) error {
	activity := models.Activity{
		MonitoredUserID: monitoredUserID,
		RemoteFileID:    remoteFileID,
		EventType:       eventType,
		FileName:        fileName,
		FileSize:        fileSize,
		EventTimestamp:  eventTS,
	}
	if err := l.conn.db.WithContext(ctx).Create(&activity).Error; err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}
	return nil
}

// FindOwningUserID resolves the remote user who uploaded the given file,
// from the upload activity trail
func (l *ActivityLog) FindOwningUserID(ctx context.Context, remoteFileID string) (string, error) {
	var userID string
	err := l.conn.db.WithContext(ctx).
		Model(&models.Activity{}).
		Select("monitored_users.user_id").
		Joins("JOIN monitored_users ON monitored_users.id = activities.monitored_user_id").
		Where("activities.remote_file_id = ? AND activities.event_type = ?", remoteFileID, models.EventTypeUpload).
		Order("activities.event_timestamp DESC").
		Limit(1).
		Scan(&userID).Error
	if err != nil {
		return "", fmt.Errorf("resolving file owner: %w", err)
	}
	if userID == "" {
		return "", ErrOwnerNotFound
	}
	return userID, nil
}

// WorkspaceStore lists the workspaces the scheduler sweeps
type WorkspaceStore struct {
	conn *Connection
}

// NewWorkspaceStore creates a workspace store over the given connection
func NewWorkspaceStore(conn *Connection) *WorkspaceStore {
	return &WorkspaceStore{conn: conn}
}

// ListActiveIDs returns the IDs of every workspace with status active
func (s *WorkspaceStore) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.conn.db.WithContext(ctx).
		Model(&models.Workspace{}).
		Where("status = ?", "active").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	return ids, nil
}
