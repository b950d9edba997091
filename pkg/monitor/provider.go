package monitor

import (
	"context"

	"github.com/google/uuid"

	"github.com/saasguard/o365-monitor/pkg/credentials"
)

// gateProvider adapts the credential gate to the ClientProvider interface
type gateProvider struct {
	gate *credentials.Gate
}

// NewGateProvider wraps a credential gate as a ClientProvider
func NewGateProvider(gate *credentials.Gate) ClientProvider {
	return gateProvider{gate: gate}
}

func (p gateProvider) ObtainClient(ctx context.Context, workspaceID uuid.UUID) (DirectoryClient, error) {
	client, err := p.gate.ObtainClient(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return client, nil
}
