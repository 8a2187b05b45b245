package external

import (
	"context"
	"net/http"
)

const healthPath = "/api/health"

// BackendProbe reports whether the backend answers its health endpoint.
// It satisfies core.HealthProbe.
type BackendProbe struct {
	base *BaseClient
}

// NewBackendProbe creates a probe that calls the health endpoint through base.
func NewBackendProbe(base *BaseClient) *BackendProbe {
	return &BackendProbe{base: base}
}

// Name implements core.HealthProbe.
func (p *BackendProbe) Name() string {
	return "backend"
}

// Check implements core.HealthProbe.
func (p *BackendProbe) Check(ctx context.Context) error {
	return p.base.CallJSON(ctx, http.MethodGet, healthPath, nil, nil, nil)
}
