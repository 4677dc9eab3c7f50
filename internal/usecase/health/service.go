package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates that every checked component failed.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names used as Report keys.
const (
	ComponentVectorStore = "vector_store"
	ComponentEmbedding   = "embedding"
)

// Report aggregates health check results.
type Report struct {
	Status  Status
	Checks  map[string]CheckResult
	Errors  map[string]string
	Elapsed time.Duration
}

// Service coordinates health checks.
type Service struct {
	db        StorePinger
	embedding EmbeddingChecker
}

// New creates a Service. Either checker can be nil; nil components are not reported.
func New(db StorePinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, embedding: embedding}
}

// Check runs health checks against all configured components.
func (s *Service) Check(ctx context.Context) Report {
	start := time.Now()
	checks := make(map[string]CheckResult)
	errs := make(map[string]string)

	record := func(name string, err error) {
		if err != nil {
			checks[name] = CheckError
			errs[name] = err.Error()
			return
		}
		checks[name] = CheckOK
	}

	if s.db != nil {
		record(ComponentVectorStore, s.db.Ping(ctx))
	}
	if s.embedding != nil {
		record(ComponentEmbedding, s.embedding.HealthCheck(ctx))
	}

	return Report{
		Status:  aggregate(checks),
		Checks:  checks,
		Errors:  errs,
		Elapsed: time.Since(start),
	}
}

func aggregate(checks map[string]CheckResult) Status {
	failed := 0
	for _, v := range checks {
		if v == CheckError {
			failed++
		}
	}
	switch {
	case failed == 0:
		return Healthy
	case failed == len(checks):
		return Unhealthy
	default:
		return Degraded
	}
}
