package ai

import (
	"context"
	"hash/fnv"

	"github.com/lapor-kita/backend/internal/models"
	"github.com/lapor-kita/backend/internal/pipeline"
)

// MockExtractor produces deterministic sample extractions for local
// development without an inference gateway.
type MockExtractor struct{}

func (MockExtractor) Extract(ctx context.Context, messages []models.ChatMessage) (*models.ExtractedReport, error) {
	if len(messages) == 0 {
		return nil, pipeline.Validationf("cannot extract from empty conversation")
	}

	h := fnv.New64a()
	for _, m := range messages {
		_, _ = h.Write([]byte(m.Text))
	}
	sum := h.Sum64()

	slugs := []string{"infrastructure", "environment", "public-safety", "social-welfare", "other"}
	severities := []models.Severity{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical}
	tags := []models.TagType{models.TagReport, models.TagComplaint, models.TagProposal}

	tag := tags[sum%uint64(len(tags))]
	regency := "Bandung"
	province := "Jawa Barat"

	return &models.ExtractedReport{
		Title:       "Laporan warga (mock)",
		Description: messages[0].Text,
		Categories: []models.ExtractedCategory{
			{Slug: slugs[sum%uint64(len(slugs))], Severity: severities[(sum/7)%uint64(len(severities))]},
		},
		TagType:          &tag,
		LocationRegency:  &regency,
		LocationProvince: &province,
	}, nil
}
