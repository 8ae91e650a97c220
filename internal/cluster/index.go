// Package cluster groups geocoded reports into spatial hotspots so nearby
// complaints surface as one incident.
package cluster

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lapor-kita/backend/internal/models"
	"github.com/lapor-kita/backend/internal/utils"
)

// Store is the persistence surface the index needs. AddReport must apply
// the weighted centroid shift and the count increment in a single
// statement so concurrent workers never lose an update.
type Store interface {
	ClustersInBox(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]models.ReportCluster, error)
	CreateCluster(ctx context.Context, c *models.ReportCluster) (*models.ReportCluster, error)
	AddReport(ctx context.Context, clusterID uuid.UUID, lat, lon float64) (*models.ReportCluster, error)
}

const metersPerDegreeLat = 111_000.0

type Index struct {
	Store         Store
	DefaultRadius int // meters, for newly created clusters
	Logger        zerolog.Logger
}

// Assign places a point into the first existing cluster whose radius covers
// it, creating a new single-report cluster when none does. The returned
// bool reports whether a cluster was created.
//
// Candidates come from a bounding-box prefilter twice as wide as the
// default radius; the exact great-circle distance decides membership.
func (ix *Index) Assign(ctx context.Context, name string, lat, lon float64) (*models.ReportCluster, bool, error) {
	radius := float64(ix.DefaultRadius)
	latDelta := radius / metersPerDegreeLat * 2
	lonDelta := latDelta / math.Max(math.Abs(math.Cos(lat*math.Pi/180)), 0.01)

	candidates, err := ix.Store.ClustersInBox(ctx, lat-latDelta, lat+latDelta, lon-lonDelta, lon+lonDelta)
	if err != nil {
		return nil, false, err
	}

	for _, c := range candidates {
		dist := utils.HaversineMeters(lat, lon, c.CenterLat, c.CenterLon)
		if dist <= float64(c.RadiusMeters) {
			updated, err := ix.Store.AddReport(ctx, c.ID, lat, lon)
			if err != nil {
				return nil, false, err
			}
			ix.Logger.Info().
				Str("cluster_id", c.ID.String()).
				Float64("distance_m", dist).
				Int("report_count", updated.ReportCount).
				Msg("report joined existing cluster")
			return updated, false, nil
		}
	}

	created, err := ix.Store.CreateCluster(ctx, &models.ReportCluster{
		Name:         name,
		CenterLat:    lat,
		CenterLon:    lon,
		RadiusMeters: ix.DefaultRadius,
		ReportCount:  1,
		Status:       models.ClusterActive,
	})
	if err != nil {
		return nil, false, err
	}
	ix.Logger.Info().Str("cluster_id", created.ID.String()).Msg("new cluster created")
	return created, true, nil
}
