// Package regions maps free-form Indonesian place names onto the canonical
// administrative region catalog (province, regency, district, village).
package regions

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lapor-kita/backend/internal/geocode"
	"github.com/lapor-kita/backend/internal/models"
)

// Catalog is the lookup surface the resolver needs from storage. Lookups
// match case-insensitively, rank exact matches before substring matches,
// and narrow by parent id when one is given.
type Catalog interface {
	FindProvince(ctx context.Context, name string) (*models.Region, error)
	FindRegency(ctx context.Context, name string, provinceID *uuid.UUID) (*models.Region, error)
	FindDistrict(ctx context.Context, name string, regencyID *uuid.UUID) (*models.Region, error)
	FindVillage(ctx context.Context, name string, districtID *uuid.UUID) (*models.Region, error)
	GetRegion(ctx context.Context, level string, id uuid.UUID) (*models.Region, error)
}

// Catalog levels, matching the region table the record lives in.
const (
	LevelProvince = "province"
	LevelRegency  = "regency"
	LevelDistrict = "district"
	LevelVillage  = "village"
)

// Names are the place names to resolve, typically merged from the language
// model's extraction and the geocoder's address components.
type Names struct {
	Province *string
	Regency  *string
	District *string
	Village  *string
}

// Resolved holds the catalog ids the resolver could confirm.
type Resolved struct {
	ProvinceID *uuid.UUID
	RegencyID  *uuid.UUID
	DistrictID *uuid.UUID
	VillageID  *uuid.UUID
}

type Resolver struct {
	Catalog Catalog
	Logger  zerolog.Logger
}

// administrative prefixes people write but the catalog does not store
var (
	provincePrefixes = []string{"provinsi ", "prov. ", "prov "}
	regencyPrefixes  = []string{"kabupaten ", "kab. ", "kab ", "kota "}
	districtPrefixes = []string{"kecamatan ", "kec. ", "kec "}
	villagePrefixes  = []string{"kelurahan ", "kel. ", "kel ", "desa ", "ds. ", "ds "}
)

// StripPrefix removes a leading administrative designation from a place
// name, so "Kabupaten Bandung" and "Bandung" resolve to the same record.
func StripPrefix(name string, prefixes []string) string {
	trimmed := strings.TrimSpace(name)
	lower := strings.ToLower(trimmed)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(trimmed[len(p):])
		}
	}
	return trimmed
}

// Resolve walks the hierarchy top-down, scoping each lookup by the parent
// already found, then backfills missing ancestors from the catalog's parent
// links. Province and regency always resolve; the level caps the finer ids.
// A match the geocoder only confirmed at regency precision never produces
// district or village ids, however confident the name lookup is.
func (r *Resolver) Resolve(ctx context.Context, names Names, level geocode.Level) (Resolved, error) {
	var out Resolved

	if names.Province != nil {
		name := StripPrefix(*names.Province, provincePrefixes)
		if name != "" {
			prov, err := r.Catalog.FindProvince(ctx, name)
			if err != nil {
				return out, err
			}
			if prov != nil {
				out.ProvinceID = &prov.ID
			} else {
				r.Logger.Debug().Str("name", name).Msg("province not in catalog")
			}
		}
	}

	if names.Regency != nil {
		name := StripPrefix(*names.Regency, regencyPrefixes)
		if name != "" {
			reg, err := r.Catalog.FindRegency(ctx, name, out.ProvinceID)
			if err != nil {
				return out, err
			}
			if reg != nil {
				out.RegencyID = &reg.ID
			} else {
				r.Logger.Debug().Str("name", name).Msg("regency not in catalog")
			}
		}
	}

	if level.AllowsDistrict() && names.District != nil {
		name := StripPrefix(*names.District, districtPrefixes)
		if name != "" {
			dis, err := r.Catalog.FindDistrict(ctx, name, out.RegencyID)
			if err != nil {
				return out, err
			}
			if dis != nil {
				out.DistrictID = &dis.ID
			} else {
				r.Logger.Debug().Str("name", name).Msg("district not in catalog")
			}
		}
	}

	if level.AllowsVillage() && names.Village != nil {
		name := StripPrefix(*names.Village, villagePrefixes)
		if name != "" {
			vil, err := r.Catalog.FindVillage(ctx, name, out.DistrictID)
			if err != nil {
				return out, err
			}
			if vil != nil {
				out.VillageID = &vil.ID
			} else {
				r.Logger.Debug().Str("name", name).Msg("village not in catalog")
			}
		}
	}

	if err := r.backfill(ctx, &out); err != nil {
		return out, err
	}
	return out, nil
}

// backfill fills missing ancestors from the child's parent link, so a
// resolved village always implies its district, regency and province.
func (r *Resolver) backfill(ctx context.Context, out *Resolved) error {
	if out.DistrictID == nil && out.VillageID != nil {
		parent, err := r.parentOf(ctx, LevelVillage, *out.VillageID)
		if err != nil {
			return err
		}
		out.DistrictID = parent
	}
	if out.RegencyID == nil && out.DistrictID != nil {
		parent, err := r.parentOf(ctx, LevelDistrict, *out.DistrictID)
		if err != nil {
			return err
		}
		out.RegencyID = parent
	}
	if out.ProvinceID == nil && out.RegencyID != nil {
		parent, err := r.parentOf(ctx, LevelRegency, *out.RegencyID)
		if err != nil {
			return err
		}
		out.ProvinceID = parent
	}
	return nil
}

func (r *Resolver) parentOf(ctx context.Context, level string, id uuid.UUID) (*uuid.UUID, error) {
	region, err := r.Catalog.GetRegion(ctx, level, id)
	if err != nil {
		return nil, err
	}
	if region == nil {
		return nil, nil
	}
	return region.ParentID, nil
}
