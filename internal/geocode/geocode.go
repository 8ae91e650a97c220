package geocode

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Level records the granularity at which the cascade produced a match. More
// specific levels compare smaller.
type Level int

const (
	LevelVillage Level = iota
	LevelDistrict
	LevelRegency
	LevelProvince
	LevelFree
)

func (l Level) String() string {
	switch l {
	case LevelVillage:
		return "village"
	case LevelDistrict:
		return "district"
	case LevelRegency:
		return "regency"
	case LevelProvince:
		return "province"
	default:
		return "free"
	}
}

// AllowsDistrict reports whether district-level region ids may be persisted
// for a match at this level. Regency and province ids are never gated; the
// precision cap only applies below regency.
func (l Level) AllowsDistrict() bool { return l <= LevelDistrict }

// AllowsVillage reports whether village-level region ids may be persisted.
func (l Level) AllowsVillage() bool { return l <= LevelVillage }

// Geocoder resolves one free-form query. A nil result with a nil error means
// the service answered but had no match; the cascade continues past it.
type Geocoder interface {
	Search(ctx context.Context, query string) (*Result, error)
}

// Result is the parsed top entry of a geocoder response.
type Result struct {
	Lat         float64
	Lon         float64
	DisplayName string
	OSMID       *int64
	OSMType     *string
	Importance  *float64
	BoundingBox []float64
	Address     Address
}

// Address carries the raw address components of a match. The regional
// component naming is inconsistent across the catalog's coverage area, so
// consumers go through the accessor fallback chains instead of reading
// fields directly.
type Address struct {
	Road          *string `json:"road"`
	Neighbourhood *string `json:"neighbourhood"`
	Suburb        *string `json:"suburb"`
	City          *string `json:"city"`
	Town          *string `json:"town"`
	Village       *string `json:"village"`
	County        *string `json:"county"`
	Region        *string `json:"region"`
	Municipality  *string `json:"municipality"`
	State         *string `json:"state"`
	Postcode      *string `json:"postcode"`
	CountryCode   *string `json:"country_code"`
}

// Regency returns the kabupaten/kota name: county where present, otherwise
// region (county is missing in some areas and region holds the regency
// there), otherwise city.
func (a Address) Regency() *string {
	if a.County != nil {
		return a.County
	}
	if a.Region != nil {
		return a.Region
	}
	return a.City
}

// District returns the kecamatan name; municipality where present, town as
// the fallback.
func (a Address) District() *string {
	if a.Municipality != nil {
		return a.Municipality
	}
	return a.Town
}

func (a Address) GetVillage() *string { return a.Village }

// CityDisplay returns the most specific city-level name for display.
func (a Address) CityDisplay() *string {
	for _, v := range []*string{a.City, a.County, a.Region, a.Town, a.Village} {
		if v != nil {
			return v
		}
	}
	return nil
}

// Hints are the extracted place names the cascade works from.
type Hints struct {
	Street   *string
	Village  *string
	District *string
	Regency  *string
	Province *string
	Raw      *string
}

// CascadeResult pairs the geocoder match with the level that produced it.
type CascadeResult struct {
	Result *Result
	Level  Level
	Query  string
}

// Cascade tries progressively coarser queries until the geocoder returns a
// match: village, district, regency, province, then an unstructured
// free-text query built from whatever hints exist. Two location parts per
// structured query work best, so each level pairs the hint with its parent.
// Street names are deliberately excluded from structured queries; they are
// unreliable in the upstream data.
//
// Returns nil when every level missed; the caller proceeds without
// coordinates.
func Cascade(ctx context.Context, g Geocoder, h Hints, logger zerolog.Logger) (*CascadeResult, error) {
	type attempt struct {
		query string
		level Level
	}
	var attempts []attempt

	// add registers an attempt when the primary hint is present; parents are
	// appended when available.
	add := func(level Level, primary *string, parents ...*string) {
		if primary == nil || strings.TrimSpace(*primary) == "" {
			return
		}
		q := []string{strings.TrimSpace(*primary)}
		for _, p := range parents {
			if p != nil && strings.TrimSpace(*p) != "" {
				q = append(q, strings.TrimSpace(*p))
			}
		}
		attempts = append(attempts, attempt{query: strings.Join(q, ", "), level: level})
	}

	add(LevelVillage, h.Village, h.District)
	add(LevelDistrict, h.District, h.Regency)
	add(LevelRegency, h.Regency, h.Province)
	add(LevelProvince, h.Province)

	if h.Raw != nil && strings.TrimSpace(*h.Raw) != "" {
		attempts = append(attempts, attempt{query: strings.TrimSpace(*h.Raw), level: LevelFree})
	}

	for i, at := range attempts {
		logger.Info().
			Int("attempt", i+1).
			Int("total", len(attempts)).
			Str("level", at.level.String()).
			Str("query", at.query).
			Msg("geocoding attempt")

		res, err := g.Search(ctx, at.query)
		if err != nil {
			return nil, err
		}
		if res != nil {
			logger.Info().Str("level", at.level.String()).Str("display_name", res.DisplayName).Msg("geocoding matched")
			return &CascadeResult{Result: res, Level: at.level, Query: at.query}, nil
		}
	}

	logger.Warn().Msg("all geocoding attempts returned no match")
	return nil, nil
}
