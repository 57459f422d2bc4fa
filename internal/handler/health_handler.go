package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"studio-site/internal/domain"
	"studio-site/internal/messaging"
	"studio-site/internal/ratelimit"
)

const (
	statusUp       = "up"
	statusDown     = "down"
	statusDegraded = "degraded"
	statusDisabled = "disabled"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Dependencies are the components /health/ready reports on. Limiter and
// RabbitMQ may be nil when not configured.
type Dependencies struct {
	Store    domain.DocumentStore
	Limiter  *ratelimit.Limiter
	RabbitMQ *messaging.RabbitMQ
}

// Ready reports dependency status. Only the document store gates
// readiness: the rate limiter keeps serving from memory and events are
// best effort.
func Ready(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		storeResult := make(chan HealthCheckResult, 1)
		limiterResult := make(chan HealthCheckResult, 1)

		go func() {
			storeResult <- checkStore(ctx, deps.Store)
		}()
		go func() {
			limiterResult <- checkLimiter(ctx, deps.Limiter)
		}()

		storeCheck := <-storeResult
		limiterCheck := <-limiterResult
		rmqCheck := checkRabbitMQ(deps.RabbitMQ)

		response := map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks": map[string]HealthCheckResult{
				"store":     storeCheck,
				"ratelimit": limiterCheck,
				"rabbitmq":  rmqCheck,
			},
		}

		status := http.StatusOK
		response["status"] = "ready"
		if storeCheck.Status != statusUp {
			status = http.StatusServiceUnavailable
			response["status"] = "not_ready"
		}

		writeJSON(w, status, response)
	}
}

func checkStore(ctx context.Context, store domain.DocumentStore) HealthCheckResult {
	start := time.Now()
	err := store.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    statusDown,
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}
	return HealthCheckResult{Status: statusUp, LatencyMs: latency.Milliseconds()}
}

func checkLimiter(ctx context.Context, limiter *ratelimit.Limiter) HealthCheckResult {
	if limiter == nil {
		return HealthCheckResult{Status: statusDisabled}
	}

	meta := map[string]any{"backend": limiter.Backend()}
	if limiter.IsDegraded() {
		return HealthCheckResult{Status: statusDegraded, Metadata: meta}
	}

	start := time.Now()
	err := limiter.Ping(ctx)
	latency := time.Since(start)

	switch {
	case errors.Is(err, ratelimit.ErrNoExternal):
		return HealthCheckResult{Status: statusUp, Metadata: meta}
	case err != nil:
		return HealthCheckResult{
			Status:    statusDown,
			LatencyMs: latency.Milliseconds(),
			Metadata:  meta,
			Error:     err.Error(),
		}
	}
	return HealthCheckResult{Status: statusUp, LatencyMs: latency.Milliseconds(), Metadata: meta}
}

func checkRabbitMQ(rmq *messaging.RabbitMQ) HealthCheckResult {
	if rmq == nil {
		return HealthCheckResult{Status: statusDisabled}
	}
	if rmq.IsClosed() {
		return HealthCheckResult{
			Status: statusDown,
			Error:  "connection closed",
		}
	}
	return HealthCheckResult{Status: statusUp}
}
