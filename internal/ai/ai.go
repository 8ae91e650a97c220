package ai

import (
	"context"

	"github.com/lapor-kita/backend/internal/models"
)

// Extractor turns an ordered conversation transcript into structured report
// fields. Implementations must return a typed error rather than fabricate a
// populated report when the model output cannot be parsed.
type Extractor interface {
	Extract(ctx context.Context, messages []models.ChatMessage) (*models.ExtractedReport, error)
}
