package health

import "context"

// Pinger checks a store's availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendChecker checks a remote provider's availability.
type BackendChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadinessGate reports whether the embedding snapshot is published.
type ReadinessGate interface {
	Ready() bool
}
