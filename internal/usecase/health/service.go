package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the store is up but the embedding provider is not.
	Degraded Status = "degraded"
	// Unhealthy indicates the vector store is unreachable.
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

const checkTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
	Errors map[string]string      `json:"errors,omitempty"`
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil.
func New(db DBPinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, embedding: embedding}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	r := Report{Status: Healthy, Checks: make(map[string]CheckResult)}
	fail := func(name string, err error) {
		r.Checks[name] = CheckError
		if r.Errors == nil {
			r.Errors = make(map[string]string)
		}
		r.Errors[name] = err.Error()
	}

	if err := s.db.Ping(ctx); err != nil {
		fail("database", err)
		r.Status = Unhealthy
	} else {
		r.Checks["database"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			fail("embedding", err)
			if r.Status == Healthy {
				r.Status = Degraded
			}
		} else {
			r.Checks["embedding"] = CheckOK
		}
	}

	return r
}

// ServeHTTP writes the report as JSON; anything but Healthy is 503.
func (s *Service) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r := s.Check(req.Context())
	code := http.StatusOK
	if r.Status != Healthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(r)
}
