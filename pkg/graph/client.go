// Package graph is a thin client for the Microsoft Graph v1.0 REST API,
// covering the directory and drive surface the monitor service needs. Every
// operation is a single attempt bounded by the client's request timeout;
// callers decide how a failure degrades.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the production Microsoft Graph endpoint
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// DefaultTimeout bounds every request issued by the client
const DefaultTimeout = 30 * time.Second

// ErrNotFound indicates a 404 response, e.g. a user without a provisioned drive
var ErrNotFound = errors.New("graph: resource not found")

// APIError represents a non-2xx response other than 404
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph: %s %s failed with status %d", e.Method, e.URL, e.StatusCode)
}

// Client issues requests against the Graph API on behalf of one bearer
// token. It is immutable after construction; concurrent use is safe.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// Option customizes client construction
type Option func(*Client)

// WithBaseURL overrides the Graph endpoint, used by tests
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithTimeout overrides the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// NewClient creates a Graph client bound to the given bearer token. The
// token is wrapped in a static source so nothing mutates shared credential
// state between calls.
func NewClient(accessToken string, opts ...Option) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = DefaultTimeout

	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: httpClient,
		tracer:     otel.Tracer("graph-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WhoAmI returns the identity behind the client's token. It is the
// validation round-trip the credential gate performs before the client is
// handed out.
func (c *Client) WhoAmI(ctx context.Context) (*User, error) {
	ctx, span := c.tracer.Start(ctx, "graph.who_am_i")
	defer span.End()

	var user User
	if err := c.get(ctx, "/me", &user); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all directory users, draining pagination
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	ctx, span := c.tracer.Start(ctx, "graph.list_users")
	defer span.End()

	next := c.baseURL + "/users?$select=id,displayName,mail"
	var users []User
	for next != "" {
		var page UserCollection
		if err := c.getURL(ctx, next, &page); err != nil {
			span.RecordError(err)
			return nil, err
		}
		users = append(users, page.Value...)
		next = page.ODataNextLink
	}

	span.SetAttributes(attribute.Int("users.count", len(users)))
	return users, nil
}

// ListRootChildren lists the top-level items of a user's default drive.
// A 404 (no provisioned drive) surfaces as ErrNotFound.
func (c *Client) ListRootChildren(ctx context.Context, userID string) ([]DriveItem, error) {
	ctx, span := c.tracer.Start(ctx, "graph.list_root_children")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	next := fmt.Sprintf("%s/users/%s/drive/root/children", c.baseURL, url.PathEscape(userID))
	var items []DriveItem
	for next != "" {
		var page DriveItemCollection
		if err := c.getURL(ctx, next, &page); err != nil {
			span.RecordError(err)
			return nil, err
		}
		items = append(items, page.Value...)
		next = page.ODataNextLink
	}

	span.SetAttributes(attribute.Int("items.count", len(items)))
	return items, nil
}

// GetItem fetches the full detail of one drive item
func (c *Client) GetItem(ctx context.Context, userID, itemID string) (*DriveItem, error) {
	ctx, span := c.tracer.Start(ctx, "graph.get_item")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("item.id", itemID),
	)

	path := fmt.Sprintf("/users/%s/drive/items/%s", url.PathEscape(userID), url.PathEscape(itemID))
	var item DriveItem
	if err := c.get(ctx, path, &item); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &item, nil
}

// StartDelta issues the initial delta call for a user's drive root. The
// returned page chain ends with a fresh delta link representing "now".
func (c *Client) StartDelta(ctx context.Context, userID string) (*DeltaPage, error) {
	ctx, span := c.tracer.Start(ctx, "graph.start_delta")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	u := fmt.Sprintf("%s/users/%s/drive/root/delta", c.baseURL, url.PathEscape(userID))
	return c.fetchDeltaPage(ctx, span, u)
}

// ContinueDelta resumes a user's change feed from a stored continuation token
func (c *Client) ContinueDelta(ctx context.Context, userID, token string) (*DeltaPage, error) {
	ctx, span := c.tracer.Start(ctx, "graph.continue_delta")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	u := fmt.Sprintf("%s/users/%s/drive/root/delta?token=%s",
		c.baseURL, url.PathEscape(userID), url.QueryEscape(token))
	return c.fetchDeltaPage(ctx, span, u)
}

// ContinueDeltaURL resumes a delta query from a raw next link, used to drain
// multi-page change sets within one synchronization pass.
func (c *Client) ContinueDeltaURL(ctx context.Context, nextLink string) (*DeltaPage, error) {
	ctx, span := c.tracer.Start(ctx, "graph.continue_delta_url")
	defer span.End()
	return c.fetchDeltaPage(ctx, span, nextLink)
}

func (c *Client) fetchDeltaPage(ctx context.Context, span trace.Span, u string) (*DeltaPage, error) {
	var page DeltaPage
	if err := c.getURL(ctx, u, &page); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if page.DeltaLink != "" {
		page.DeltaToken = TokenFromDeltaLink(page.DeltaLink)
	}
	span.SetAttributes(
		attribute.Int("items.count", len(page.Value)),
		attribute.Bool("has_next", page.NextLink != ""),
	)
	return &page, nil
}

// DeleteItem removes one item from a user's drive and waits for the remote
// acknowledgment. A nil return means the service confirmed the deletion.
func (c *Client) DeleteItem(ctx context.Context, userID, itemID string) error {
	ctx, span := c.tracer.Start(ctx, "graph.delete_item")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("item.id", itemID),
	)

	u := fmt.Sprintf("%s/users/%s/drive/items/%s", c.baseURL, url.PathEscape(userID), url.PathEscape(itemID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		span.RecordError(err)
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		span.RecordError(ErrNotFound)
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := c.apiError(http.MethodDelete, u, resp)
		span.RecordError(err)
		return err
	}
	return nil
}

// ListSites lists SharePoint sites visible to the token
func (c *Client) ListSites(ctx context.Context) ([]Site, error) {
	ctx, span := c.tracer.Start(ctx, "graph.list_sites")
	defer span.End()

	next := c.baseURL + "/sites"
	var sites []Site
	for next != "" {
		var page SiteCollection
		if err := c.getURL(ctx, next, &page); err != nil {
			span.RecordError(err)
			return nil, err
		}
		sites = append(sites, page.Value...)
		next = page.ODataNextLink
	}

	span.SetAttributes(attribute.Int("sites.count", len(sites)))
	return sites, nil
}

// ListSiteRootChildren lists the top-level items of a site's default drive
func (c *Client) ListSiteRootChildren(ctx context.Context, siteID string) ([]DriveItem, error) {
	ctx, span := c.tracer.Start(ctx, "graph.list_site_root_children")
	defer span.End()
	span.SetAttributes(attribute.String("site.id", siteID))

	next := fmt.Sprintf("%s/sites/%s/drive/root/children", c.baseURL, url.PathEscape(siteID))
	var items []DriveItem
	for next != "" {
		var page DriveItemCollection
		if err := c.getURL(ctx, next, &page); err != nil {
			span.RecordError(err)
			return nil, err
		}
		items = append(items, page.Value...)
		next = page.ODataNextLink
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.getURL(ctx, c.baseURL+path, out)
}

func (c *Client) getURL(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(http.MethodGet, u, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("graph: reading response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("graph: decoding response: %w", err)
	}
	return nil
}

func (c *Client) apiError(method, u string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{
		StatusCode: resp.StatusCode,
		Method:     method,
		URL:        u,
		Body:       string(body),
	}
}
