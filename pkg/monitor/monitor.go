// Package monitor implements the delta-synchronization core: per-user
// change-feed cursors, change classification, the multi-user sweep and the
// remote deletion propagation path.
package monitor

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/saasguard/o365-monitor/pkg/graph"
)

// EventType is the classification assigned to one changed drive item
type EventType int

const (
	// EventUnknown marks an item carrying neither timestamps nor facets
	// that would identify it; surfaced to the caller, never dropped
	EventUnknown EventType = iota
	// EventUpload marks an item's first appearance
	EventUpload
	// EventChange marks a subsequent edit
	EventChange
	// EventDelete marks a removed item
	EventDelete
	// EventIgnored marks a folder, which produces no downstream event
	EventIgnored
)

// String returns the wire name of the event type
func (t EventType) String() string {
	switch t {
	case EventUpload:
		return "file_upload"
	case EventChange:
		return "file_change"
	case EventDelete:
		return "file_delete"
	case EventIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// ErrUnknownUser indicates a synchronize call for an unregistered user
var ErrUnknownUser = errors.New("monitor: user is not registered for monitoring")

// DirectoryClient is the remote API surface the monitor consumes. It is
// satisfied by *graph.Client; tests substitute fakes.
type DirectoryClient interface {
	ListUsers(ctx context.Context) ([]graph.User, error)
	ListRootChildren(ctx context.Context, userID string) ([]graph.DriveItem, error)
	GetItem(ctx context.Context, userID, itemID string) (*graph.DriveItem, error)
	StartDelta(ctx context.Context, userID string) (*graph.DeltaPage, error)
	ContinueDelta(ctx context.Context, userID, token string) (*graph.DeltaPage, error)
	ContinueDeltaURL(ctx context.Context, nextLink string) (*graph.DeltaPage, error)
	DeleteItem(ctx context.Context, userID, itemID string) error
	ListSites(ctx context.Context) ([]graph.Site, error)
	ListSiteRootChildren(ctx context.Context, siteID string) ([]graph.DriveItem, error)
}

// ClientProvider yields a validated client for a workspace, or fails closed
type ClientProvider interface {
	ObtainClient(ctx context.Context, workspaceID uuid.UUID) (DirectoryClient, error)
}

// UserRegistry reads the monitored-user roster. ResolveInternalID reports
// an unregistered user with an error matching ErrUnknownUser; any other
// error is a registry failure.
type UserRegistry interface {
	ListUserIDs(ctx context.Context, workspaceID uuid.UUID) ([]string, error)
	ResolveInternalID(ctx context.Context, userID string) (int64, error)
}

// CursorStore persists one continuation token per monitored user. Get's
// second return is false when the user has never been synchronized.
type CursorStore interface {
	Get(ctx context.Context, monitoredUserID int64) (string, bool, error)
	Upsert(ctx context.Context, monitoredUserID int64, token string) error
}

// ActivityLog answers file-ownership lookups for deletion propagation
type ActivityLog interface {
	FindOwningUserID(ctx context.Context, remoteFileID string) (string, error)
}

// ClassifiedEvent pairs one changed item with its classification
type ClassifiedEvent struct {
	Item *graph.DriveItem
	Type EventType
}

// Result is the outcome of one synchronize call: every non-folder change of
// the drained page set, keyed by item
type Result []ClassifiedEvent

// EventSink receives classified events for downstream hand-off
type EventSink interface {
	PublishActivity(ctx context.Context, activity Activity) error
}

// Activity is one classified event with its ownership context, handed to
// the sink after a sweep
type Activity struct {
	WorkspaceID     uuid.UUID
	UserID          string
	MonitoredUserID int64
	Item            *graph.DriveItem
	Type            EventType
}
