package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/saasguard/o365-monitor/pkg/graph"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type mapStore map[uuid.UUID]string

func (s mapStore) FindEncryptedToken(ctx context.Context, workspaceID uuid.UUID) (string, error) {
	token, ok := s[workspaceID]
	if !ok {
		return "", errors.New("no row")
	}
	return token, nil
}

func signedToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expiry)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("remote-idp-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func encryptToken(t *testing.T, token string) string {
	t.Helper()
	encrypted, err := Encrypt(token, testKey)
	if err != nil {
		t.Fatalf("encrypting token: %v", err)
	}
	return encrypted
}

func TestGate_MissingCredential(t *testing.T) {
	gate := NewGate(mapStore{}, testKey)

	_, err := gate.ObtainClient(context.Background(), uuid.New())
	if !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("Expected ErrCredentialNotFound, got %v", err)
	}
}

func TestGate_GarbledCiphertext(t *testing.T) {
	workspaceID := uuid.New()
	gate := NewGate(mapStore{workspaceID: "not-base64!!!"}, testKey)

	_, err := gate.ObtainClient(context.Background(), workspaceID)
	if !errors.Is(err, ErrDecryption) {
		t.Fatalf("Expected ErrDecryption, got %v", err)
	}
}

func TestGate_WrongKey(t *testing.T) {
	workspaceID := uuid.New()
	encrypted := encryptToken(t, signedToken(t, time.Now().Add(time.Hour)))
	wrongKey := []byte("ffffffffffffffffffffffffffffffff")
	gate := NewGate(mapStore{workspaceID: encrypted}, wrongKey)

	_, err := gate.ObtainClient(context.Background(), workspaceID)
	if !errors.Is(err, ErrDecryption) {
		t.Fatalf("Expected ErrDecryption, got %v", err)
	}
}

func TestGate_TokenWithoutExpiry(t *testing.T) {
	workspaceID := uuid.New()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	gate := NewGate(mapStore{workspaceID: encryptToken(t, token)}, testKey)

	if _, err := gate.ObtainClient(context.Background(), workspaceID); err == nil {
		t.Fatal("Expected error for a token without an expiry claim")
	}
}

func TestGate_ExpiredToken(t *testing.T) {
	workspaceID := uuid.New()
	encrypted := encryptToken(t, signedToken(t, time.Now().Add(-time.Hour)))
	gate := NewGate(mapStore{workspaceID: encrypted}, testKey)

	_, err := gate.ObtainClient(context.Background(), workspaceID)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestGate_ExpiryBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	workspaceID := uuid.New()

	// exp exactly equal to the clock fails closed.
	encrypted := encryptToken(t, signedToken(t, now))
	gate := NewGate(mapStore{workspaceID: encrypted}, testKey,
		WithClock(func() time.Time { return now }))

	_, err := gate.ObtainClient(context.Background(), workspaceID)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Expected ErrTokenExpired at the boundary, got %v", err)
	}

	// One second of remaining validity passes the expiry check and reaches
	// validation.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "svc"}`)
	}))
	defer server.Close()

	encrypted = encryptToken(t, signedToken(t, now.Add(time.Second)))
	gate = NewGate(mapStore{workspaceID: encrypted}, testKey,
		WithClock(func() time.Time { return now }),
		WithClientOptions(graph.WithBaseURL(server.URL)))

	if _, err := gate.ObtainClient(context.Background(), workspaceID); err != nil {
		t.Fatalf("Expected a client one second before expiry, got %v", err)
	}
}

func TestGate_ValidationRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	workspaceID := uuid.New()
	encrypted := encryptToken(t, signedToken(t, time.Now().Add(time.Hour)))
	gate := NewGate(mapStore{workspaceID: encrypted}, testKey,
		WithClientOptions(graph.WithBaseURL(server.URL)))

	_, err := gate.ObtainClient(context.Background(), workspaceID)
	if !errors.Is(err, ErrClientValidation) {
		t.Fatalf("Expected ErrClientValidation, got %v", err)
	}
}

func TestGate_ValidClientExactlyOneValidationCall(t *testing.T) {
	meCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me" {
			meCalls++
		}
		fmt.Fprint(w, `{"id": "svc", "displayName": "Service Account"}`)
	}))
	defer server.Close()

	workspaceID := uuid.New()
	encrypted := encryptToken(t, signedToken(t, time.Now().Add(time.Hour)))
	gate := NewGate(mapStore{workspaceID: encrypted}, testKey,
		WithClientOptions(graph.WithBaseURL(server.URL)))

	client, err := gate.ObtainClient(context.Background(), workspaceID)
	if err != nil {
		t.Fatalf("ObtainClient failed: %v", err)
	}
	if client == nil {
		t.Fatal("Expected a usable client")
	}
	if meCalls != 1 {
		t.Errorf("Expected exactly one validation round-trip, got %d", meCalls)
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	plaintext := "bearer-token-material"
	encrypted, err := Encrypt(plaintext, testKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	decrypted, err := Decrypt(encrypted, testKey)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Expected %q, got %q", plaintext, decrypted)
	}
}

func TestDecrypt_TruncatedCiphertext(t *testing.T) {
	// Valid base64 but shorter than a nonce.
	if _, err := Decrypt("AAAA", testKey); err == nil {
		t.Fatal("Expected error for ciphertext shorter than the nonce")
	}
}
