package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/saasguard/o365-monitor/pkg/graph"
	"github.com/saasguard/o365-monitor/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: logger.JSONFormat,
		Output: discardWriter{},
	})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// fakeClient scripts the remote API surface per method
type fakeClient struct {
	startDeltaFn    func(ctx context.Context, userID string) (*graph.DeltaPage, error)
	continueDeltaFn func(ctx context.Context, userID, token string) (*graph.DeltaPage, error)
	continueURLFn   func(ctx context.Context, nextLink string) (*graph.DeltaPage, error)
	getItemFn       func(ctx context.Context, userID, itemID string) (*graph.DriveItem, error)
	deleteItemFn       func(ctx context.Context, userID, itemID string) error
	listChildrenFn     func(ctx context.Context, userID string) ([]graph.DriveItem, error)
	listSitesFn        func(ctx context.Context) ([]graph.Site, error)
	listSiteChildrenFn func(ctx context.Context, siteID string) ([]graph.DriveItem, error)

	mu            sync.Mutex
	startCalls    int
	continueCalls int
	deleteCalls   []string
}

func (c *fakeClient) ListUsers(ctx context.Context) ([]graph.User, error) { return nil, nil }

func (c *fakeClient) ListRootChildren(ctx context.Context, userID string) ([]graph.DriveItem, error) {
	if c.listChildrenFn != nil {
		return c.listChildrenFn(ctx, userID)
	}
	return nil, nil
}

func (c *fakeClient) GetItem(ctx context.Context, userID, itemID string) (*graph.DriveItem, error) {
	if c.getItemFn != nil {
		return c.getItemFn(ctx, userID, itemID)
	}
	return nil, errors.New("not scripted")
}

func (c *fakeClient) StartDelta(ctx context.Context, userID string) (*graph.DeltaPage, error) {
	c.mu.Lock()
	c.startCalls++
	c.mu.Unlock()
	if c.startDeltaFn != nil {
		return c.startDeltaFn(ctx, userID)
	}
	return nil, errors.New("not scripted")
}

func (c *fakeClient) ContinueDelta(ctx context.Context, userID, token string) (*graph.DeltaPage, error) {
	c.mu.Lock()
	c.continueCalls++
	c.mu.Unlock()
	if c.continueDeltaFn != nil {
		return c.continueDeltaFn(ctx, userID, token)
	}
	return nil, errors.New("not scripted")
}

func (c *fakeClient) ContinueDeltaURL(ctx context.Context, nextLink string) (*graph.DeltaPage, error) {
	if c.continueURLFn != nil {
		return c.continueURLFn(ctx, nextLink)
	}
	return nil, errors.New("not scripted")
}

func (c *fakeClient) DeleteItem(ctx context.Context, userID, itemID string) error {
	c.mu.Lock()
	c.deleteCalls = append(c.deleteCalls, userID+"/"+itemID)
	c.mu.Unlock()
	if c.deleteItemFn != nil {
		return c.deleteItemFn(ctx, userID, itemID)
	}
	return nil
}

func (c *fakeClient) ListSites(ctx context.Context) ([]graph.Site, error) {
	if c.listSitesFn != nil {
		return c.listSitesFn(ctx)
	}
	return nil, nil
}

func (c *fakeClient) ListSiteRootChildren(ctx context.Context, siteID string) ([]graph.DriveItem, error) {
	if c.listSiteChildrenFn != nil {
		return c.listSiteChildrenFn(ctx, siteID)
	}
	return nil, nil
}

// fakeRegistry maps remote user IDs to internal IDs
type fakeRegistry struct {
	users      map[string]int64
	order      []string
	resolveErr error
}

func newFakeRegistry(userIDs ...string) *fakeRegistry {
	r := &fakeRegistry{users: make(map[string]int64)}
	for i, id := range userIDs {
		r.users[id] = int64(i + 1)
		r.order = append(r.order, id)
	}
	return r
}

func (r *fakeRegistry) ListUserIDs(ctx context.Context, workspaceID uuid.UUID) ([]string, error) {
	return append([]string(nil), r.order...), nil
}

func (r *fakeRegistry) ResolveInternalID(ctx context.Context, userID string) (int64, error) {
	if r.resolveErr != nil {
		return 0, r.resolveErr
	}
	id, ok := r.users[userID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return id, nil
}

// fakeCursors is an in-memory cursor store
type fakeCursors struct {
	mu        sync.Mutex
	tokens    map[int64]string
	upsertErr error
	upserts   int
}

func newFakeCursors() *fakeCursors {
	return &fakeCursors{tokens: make(map[int64]string)}
}

func (c *fakeCursors) Get(ctx context.Context, monitoredUserID int64) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, ok := c.tokens[monitoredUserID]
	return token, ok, nil
}

func (c *fakeCursors) Upsert(ctx context.Context, monitoredUserID int64, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.upsertErr != nil {
		return c.upsertErr
	}
	c.upserts++
	c.tokens[monitoredUserID] = token
	return nil
}

// fakeSink collects published activities
type fakeSink struct {
	mu         sync.Mutex
	activities []Activity
	publishErr error
}

func (s *fakeSink) PublishActivity(ctx context.Context, activity Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return s.publishErr
	}
	s.activities = append(s.activities, activity)
	return nil
}

// fakeProvider hands out a scripted client or fails
type fakeProvider struct {
	client DirectoryClient
	err    error
}

func (p *fakeProvider) ObtainClient(ctx context.Context, workspaceID uuid.UUID) (DirectoryClient, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.client, nil
}

// fakeActivityLog answers ownership lookups
type fakeActivityLog struct {
	owners map[string]string
}

func (l *fakeActivityLog) FindOwningUserID(ctx context.Context, remoteFileID string) (string, error) {
	owner, ok := l.owners[remoteFileID]
	if !ok {
		return "", errors.New("no owning user recorded")
	}
	return owner, nil
}

// item builders

func fileItem(id string, created, modified string) graph.DriveItem {
	return graph.DriveItem{
		ID:                   id,
		Name:                 id + ".docx",
		CreatedDateTime:      created,
		LastModifiedDateTime: modified,
		File:                 &graph.FileMetadata{MimeType: "application/octet-stream"},
	}
}

func folderItem(id string) graph.DriveItem {
	return graph.DriveItem{
		ID:     id,
		Name:   id,
		Folder: &graph.FolderMetadata{},
	}
}

func deletedItem(id string) graph.DriveItem {
	return graph.DriveItem{
		ID:      id,
		Name:    id + ".docx",
		Deleted: &graph.DeletedMetadata{State: "deleted"},
	}
}
