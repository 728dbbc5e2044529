package port

import (
	"context"

	"github.com/ptdat/guild-bank/internal/core/domain"
)

// Extractor is the OCR capability. It is a pure sensor: it returns text
// spans with geometry and sampled color and makes no semantic decisions.
type Extractor interface {
	// Extract runs OCR over the image bytes and returns one span per word.
	Extract(ctx context.Context, image []byte) ([]domain.Span, error)
}
