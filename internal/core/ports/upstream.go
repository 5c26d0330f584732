package ports

import (
	"context"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
)

// ChatCompleter issues a single chat completion and returns the reply text.
type ChatCompleter interface {
	Complete(ctx context.Context, model string, messages []domain.Message, maxTokens int, temperature float64) (string, error)
}
