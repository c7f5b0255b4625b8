package knowledge

import (
	"context"

	"github.com/kailas-cloud/abai/internal/domain"
	"github.com/kailas-cloud/abai/internal/usecase/warmup"
)

// Embedder vectorizes the incoming question.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// SnapshotSource exposes the warmed-up embeddings.
type SnapshotSource interface {
	Snapshot() (*warmup.Snapshot, bool)
}
