package health

import "context"

// DBPinger reports whether the vector store answers.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker reports whether the embedding provider answers.
// A failing provider degrades the pipeline but does not make it unhealthy.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
