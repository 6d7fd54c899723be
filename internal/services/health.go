package services

import (
	"context"
	"time"
)

const (
	StatusOK          = "ok"
	StatusUnavailable = "unavailable"
	StatusDisabled    = "disabled"
)

// Health probes every dependency; a failing dependency never fails the call
func (p *Pool) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	status := map[string]string{
		"vector_store": probe(p.Vectors.HealthCheck(ctx)),
		"embeddings":   probe(p.Embedder.Health(ctx) == nil),
		"lexical":      StatusOK,
	}

	if p.DB != nil {
		status["postgres"] = probe(p.DB.Ping(ctx) == nil)
	} else {
		status["postgres"] = StatusDisabled
	}

	if p.Redis != nil {
		status["redis"] = probe(p.Redis.Ping(ctx).Err() == nil)
	} else {
		status["redis"] = StatusDisabled
	}

	if _, err := p.Broker.Stats(ctx); err != nil {
		status["queue"] = StatusUnavailable
	} else {
		status["queue"] = StatusOK
	}

	return status
}

func probe(ok bool) string {
	if ok {
		return StatusOK
	}
	return StatusUnavailable
}
