package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckPending indicates a component still starting up.
	CheckPending CheckResult = "pending"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Deps are the checked components. Only Database is required.
type Deps struct {
	Database   Pinger
	Cache      Pinger
	Embedding  BackendChecker
	Generation BackendChecker
	Warmup     ReadinessGate
}

// Service coordinates health checks.
type Service struct {
	deps Deps
}

// New creates a Service.
func New(deps Deps) *Service {
	return &Service{deps: deps}
}

// Check runs health checks against all configured components.
// A pending warmup degrades the status: answers are served without FAQ or retrieval.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["database"] = result(s.deps.Database.Ping(ctx))
	if s.deps.Cache != nil {
		checks["cache"] = result(s.deps.Cache.Ping(ctx))
	}
	if s.deps.Embedding != nil {
		checks["embedding"] = result(s.deps.Embedding.HealthCheck(ctx))
	}
	if s.deps.Generation != nil {
		checks["generation"] = result(s.deps.Generation.HealthCheck(ctx))
	}
	if s.deps.Warmup != nil {
		if s.deps.Warmup.Ready() {
			checks["embeddings_ready"] = CheckOK
		} else {
			checks["embeddings_ready"] = CheckPending
		}
	}

	status := Healthy
	for _, v := range checks {
		if v != CheckOK {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
