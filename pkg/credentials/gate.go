// Package credentials gates every remote call behind a validated client:
// stored ciphertext is decrypted, the bearer token's expiry claim checked,
// and the resulting Graph client confirmed against the remote service
// before it is handed to a caller.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/saasguard/o365-monitor/pkg/graph"
)

var (
	// ErrCredentialNotFound indicates no stored credential for the workspace
	ErrCredentialNotFound = errors.New("credentials: no credential stored for workspace")
	// ErrDecryption indicates the stored ciphertext could not be opened
	ErrDecryption = errors.New("credentials: ciphertext could not be decrypted")
	// ErrTokenExpired indicates the bearer token's expiry claim has passed
	ErrTokenExpired = errors.New("credentials: token is expired")
	// ErrClientValidation indicates the remote service refused the token
	ErrClientValidation = errors.New("credentials: remote service rejected the token")
)

// Store is the workspace credential lookup the gate consumes
type Store interface {
	FindEncryptedToken(ctx context.Context, workspaceID uuid.UUID) (string, error)
}

// Gate produces validated Graph clients for workspaces, or fails closed
type Gate struct {
	store      Store
	key        []byte
	clientOpts []graph.Option
	now        func() time.Time
	tracer     trace.Tracer
}

// GateOption customizes gate construction
type GateOption func(*Gate)

// WithClientOptions forwards options to every client the gate builds
func WithClientOptions(opts ...graph.Option) GateOption {
	return func(g *Gate) { g.clientOpts = opts }
}

// WithClock overrides the expiry clock, used by tests
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a credential gate decrypting with the given symmetric key
func NewGate(store Store, key []byte, opts ...GateOption) *Gate {
	g := &Gate{
		store:  store,
		key:    key,
		now:    time.Now,
		tracer: otel.Tracer("credential-gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ObtainClient looks up, decrypts and validates the workspace credential and
// returns a Graph client bound to it. Exactly one validation round-trip is
// made; there are no retries.
func (g *Gate) ObtainClient(ctx context.Context, workspaceID uuid.UUID) (*graph.Client, error) {
	ctx, span := g.tracer.Start(ctx, "credentials.obtain_client")
	defer span.End()
	span.SetAttributes(attribute.String("workspace.id", workspaceID.String()))

	encrypted, err := g.store.FindEncryptedToken(ctx, workspaceID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, workspaceID)
	}

	token, err := Decrypt(encrypted, g.key)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	expiry, err := TokenExpiry(token)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if !expiry.After(g.now()) {
		span.RecordError(ErrTokenExpired)
		return nil, ErrTokenExpired
	}

	client := graph.NewClient(token, g.clientOpts...)
	if _, err := client.WhoAmI(ctx); err != nil {
		// Revoked, expired-but-undetected and network failures all collapse
		// into one outcome; the caller cannot act on the distinction.
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrClientValidation, err)
	}

	return client, nil
}

// TokenExpiry extracts the exp claim from a bearer token without verifying
// its signature. The token belongs to the remote identity provider, so the
// monitor can only read it, not verify it.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no expiry claim")
	}
	return claims.ExpiresAt.Time, nil
}
