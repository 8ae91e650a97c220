package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lapor-kita/backend/internal/llmjson"
	"github.com/lapor-kita/backend/internal/models"
	"github.com/lapor-kita/backend/internal/pipeline"
)

// ReportExtractor runs a schema-constrained inference call over a
// conversation transcript and parses the result through the llmjson repair
// pipeline.
type ReportExtractor struct {
	Client *InferenceClient
}

func (e *ReportExtractor) Extract(ctx context.Context, messages []models.ChatMessage) (*models.ExtractedReport, error) {
	if len(messages) == 0 {
		return nil, pipeline.Validationf("cannot extract from empty conversation")
	}

	text, err := e.Client.Complete(ctx, systemPrompt, userPrompt(messages))
	if err != nil {
		return nil, err
	}

	var extracted models.ExtractedReport
	if err := llmjson.Unmarshal(text, &extracted); err != nil {
		var pe *llmjson.ParseError
		if errors.As(err, &pe) {
			return nil, pipeline.Validationf("extraction output unparseable: %v", pe.Err)
		}
		return nil, err
	}

	if strings.TrimSpace(extracted.Title) == "" || strings.TrimSpace(extracted.Description) == "" {
		return nil, pipeline.Validationf("extraction returned empty title or description")
	}
	return &extracted, nil
}

func userPrompt(messages []models.ChatMessage) string {
	var sb strings.Builder
	sb.WriteString("Extract structured report data from this conversation:\n\n")
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		role := "User"
		if strings.EqualFold(m.Role, "assistant") {
			role = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s", role, m.Text)
	}
	return sb.String()
}

const systemPrompt = `You are a data extraction assistant for a citizen report system. Your task is to extract structured information from conversations between citizens and an AI assistant about issues they want to report.

Extract the following information:
- title: A concise title for the report (max 200 characters)
- description: A detailed description of the issue
- categories: A list of {slug, severity} objects. slug is one of: infrastructure, environment, public-safety, social-welfare, other. severity is one of: low, medium, high, critical
- tag_type: One of: report, proposal, complaint, inquiry, appreciation
- timeline: When the issue started or when it occurred
- impact: Who or how many people are affected
- location_street: Street or road name, if mentioned
- location_village: Village name (desa/kelurahan), if mentioned
- location_district: District name (kecamatan), if mentioned
- location_regency: Regency or city name (kabupaten/kota), if mentioned
- location_province: Province name, if mentioned
- location_raw: The raw location description as the citizen phrased it

Be accurate and only extract information that is explicitly mentioned in the conversation. If information is not provided, set it to null.

You MUST respond with valid JSON that conforms to this schema:
` + "```json" + `
{
    "type": "object",
    "properties": {
        "title": {"type": "string"},
        "description": {"type": "string"},
        "categories": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "slug": {"type": "string", "enum": ["infrastructure", "environment", "public-safety", "social-welfare", "other"]},
                    "severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]}
                },
                "required": ["slug", "severity"]
            }
        },
        "tag_type": {"type": ["string", "null"], "enum": ["report", "proposal", "complaint", "inquiry", "appreciation", null]},
        "timeline": {"type": ["string", "null"]},
        "impact": {"type": ["string", "null"]},
        "location_street": {"type": ["string", "null"]},
        "location_village": {"type": ["string", "null"]},
        "location_district": {"type": ["string", "null"]},
        "location_regency": {"type": ["string", "null"]},
        "location_province": {"type": ["string", "null"]},
        "location_raw": {"type": ["string", "null"]}
    },
    "required": ["title", "description"],
    "additionalProperties": false
}
` + "```" + `

Respond ONLY with the JSON object, no additional text or explanation.`
