package models

import "strings"

// ExtractedCategory is one (category, severity) pair produced by extraction.
type ExtractedCategory struct {
	Slug     string   `json:"slug"`
	Severity Severity `json:"severity"`
}

// ExtractedReport is the structured output of conversation extraction.
// Location hints are free text at up to five granularities; they are matched
// against the region catalog later, never trusted as-is.
type ExtractedReport struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Categories  []ExtractedCategory `json:"categories"`
	TagType     *TagType            `json:"tag_type"`
	Timeline    *string             `json:"timeline"`
	Impact      *string             `json:"impact"`

	LocationStreet   *string `json:"location_street"`
	LocationVillage  *string `json:"location_village"`
	LocationDistrict *string `json:"location_district"`
	LocationRegency  *string `json:"location_regency"`
	LocationProvince *string `json:"location_province"`
	LocationRaw      *string `json:"location_raw"`
}

// HasLocation reports whether any hint exists that geocoding could use.
func (e *ExtractedReport) HasLocation() bool {
	return e.LocationVillage != nil || e.LocationDistrict != nil ||
		e.LocationRegency != nil || e.LocationProvince != nil || e.LocationRaw != nil
}

// RawLocationInput returns the free-text location, falling back to the hint
// parts joined with commas.
func (e *ExtractedReport) RawLocationInput() string {
	if e.LocationRaw != nil && strings.TrimSpace(*e.LocationRaw) != "" {
		return *e.LocationRaw
	}
	return JoinLocationParts(e.LocationStreet, e.LocationVillage, e.LocationDistrict, e.LocationRegency, e.LocationProvince)
}

// DisplayName builds a human-readable name from the extracted hints,
// most specific first. Empty when no hint was extracted.
func (e *ExtractedReport) DisplayName() string {
	return JoinLocationParts(e.LocationStreet, e.LocationVillage, e.LocationDistrict, e.LocationRegency, e.LocationProvince)
}

func JoinLocationParts(parts ...*string) string {
	var out []string
	for _, p := range parts {
		if p != nil && strings.TrimSpace(*p) != "" {
			out = append(out, strings.TrimSpace(*p))
		}
	}
	return strings.Join(out, ", ")
}
