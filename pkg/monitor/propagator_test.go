package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestPropagator_DeletesFromOwnerDrive(t *testing.T) {
	client := &fakeClient{}
	prop := NewPropagator(
		&fakeActivityLog{owners: map[string]string{"file-1": "user-a"}},
		&fakeProvider{client: client},
		testLogger(),
	)

	if !prop.PropagateDelete(context.Background(), uuid.New(), "file-1") {
		t.Fatal("Expected propagation to succeed")
	}
	if len(client.deleteCalls) != 1 || client.deleteCalls[0] != "user-a/file-1" {
		t.Errorf("Expected one delete against user-a/file-1, got %v", client.deleteCalls)
	}
}

func TestPropagator_NoOwnerMakesNoRemoteCall(t *testing.T) {
	client := &fakeClient{}
	prop := NewPropagator(
		&fakeActivityLog{owners: map[string]string{}},
		&fakeProvider{client: client},
		testLogger(),
	)

	if prop.PropagateDelete(context.Background(), uuid.New(), "file-1") {
		t.Fatal("Expected propagation to fail without an owner")
	}
	if len(client.deleteCalls) != 0 {
		t.Errorf("No remote call expected, got %v", client.deleteCalls)
	}
}

func TestPropagator_GateFailure(t *testing.T) {
	prop := NewPropagator(
		&fakeActivityLog{owners: map[string]string{"file-1": "user-a"}},
		&fakeProvider{err: errors.New("token expired")},
		testLogger(),
	)

	if prop.PropagateDelete(context.Background(), uuid.New(), "file-1") {
		t.Fatal("Expected propagation to fail when no client can be obtained")
	}
}

func TestPropagator_RemoteDeleteFailure(t *testing.T) {
	client := &fakeClient{
		deleteItemFn: func(ctx context.Context, userID, itemID string) error {
			return errors.New("forbidden")
		},
	}
	prop := NewPropagator(
		&fakeActivityLog{owners: map[string]string{"file-1": "user-a"}},
		&fakeProvider{client: client},
		testLogger(),
	)

	if prop.PropagateDelete(context.Background(), uuid.New(), "file-1") {
		t.Fatal("Expected propagation to report failure from the remote delete")
	}
	if len(client.deleteCalls) != 1 {
		t.Errorf("Expected exactly one delete attempt, got %d", len(client.deleteCalls))
	}
}
