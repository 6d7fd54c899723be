package health

import "context"

// Checker reports per-dependency status
type Checker interface {
	Health(ctx context.Context) map[string]string
}

type Response struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Version      string            `json:"version,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

type PingResponse struct {
	Message string `json:"message"`
}
