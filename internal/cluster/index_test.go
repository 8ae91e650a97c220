package cluster

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lapor-kita/backend/internal/models"
	"github.com/lapor-kita/backend/internal/utils"
)

type fakeStore struct {
	clusters []models.ReportCluster
}

func (f *fakeStore) ClustersInBox(_ context.Context, minLat, maxLat, minLon, maxLon float64) ([]models.ReportCluster, error) {
	var out []models.ReportCluster
	for _, c := range f.clusters {
		if c.Status != models.ClusterActive {
			continue
		}
		if c.CenterLat >= minLat && c.CenterLat <= maxLat && c.CenterLon >= minLon && c.CenterLon <= maxLon {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateCluster(_ context.Context, c *models.ReportCluster) (*models.ReportCluster, error) {
	created := *c
	created.ID = uuid.New()
	f.clusters = append(f.clusters, created)
	return &created, nil
}

func (f *fakeStore) AddReport(_ context.Context, clusterID uuid.UUID, lat, lon float64) (*models.ReportCluster, error) {
	for i := range f.clusters {
		if f.clusters[i].ID != clusterID {
			continue
		}
		c := &f.clusters[i]
		newCount := c.ReportCount + 1
		c.CenterLat = (c.CenterLat*float64(c.ReportCount) + lat) / float64(newCount)
		c.CenterLon = (c.CenterLon*float64(c.ReportCount) + lon) / float64(newCount)
		c.ReportCount = newCount
		out := *c
		return &out, nil
	}
	return nil, nil
}

func newIndex(s Store) *Index {
	return &Index{Store: s, DefaultRadius: 500, Logger: zerolog.Nop()}
}

func TestAssignCreatesClusterWhenNoneNearby(t *testing.T) {
	store := &fakeStore{}
	ix := newIndex(store)

	c, created, err := ix.Assign(context.Background(), "Jalan Merdeka", -6.9175, 107.6191)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected a new cluster")
	}
	if c.ReportCount != 1 {
		t.Fatalf("new cluster should start with one report, got %d", c.ReportCount)
	}
	if c.RadiusMeters != 500 {
		t.Fatalf("new cluster should use the default radius, got %d", c.RadiusMeters)
	}
	if c.Status != models.ClusterActive {
		t.Fatalf("new cluster should be active, got %s", c.Status)
	}
	if c.CenterLat != -6.9175 || c.CenterLon != 107.6191 {
		t.Fatalf("new cluster should be centered on the report: %+v", c)
	}
}

func TestAssignJoinsNearbyCluster(t *testing.T) {
	store := &fakeStore{}
	ix := newIndex(store)

	first, _, err := ix.Assign(context.Background(), "Jalan Merdeka", -6.9175, 107.6191)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// roughly 110 m north of the first report
	lat, lon := -6.9165, 107.6191
	second, created, err := ix.Assign(context.Background(), "Jalan Merdeka", lat, lon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("nearby report should join the existing cluster")
	}
	if second.ID != first.ID {
		t.Fatal("joined a different cluster")
	}
	if second.ReportCount != 2 {
		t.Fatalf("expected count 2, got %d", second.ReportCount)
	}

	// the centroid shifts toward the new point by 1/count of the distance
	wantLat := (first.CenterLat + lat) / 2
	if math.Abs(second.CenterLat-wantLat) > 1e-9 {
		t.Fatalf("centroid lat %f, want %f", second.CenterLat, wantLat)
	}
}

func TestAssignIgnoresFarCluster(t *testing.T) {
	store := &fakeStore{}
	ix := newIndex(store)

	first, _, err := ix.Assign(context.Background(), "Bandung", -6.9175, 107.6191)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Jakarta is far beyond any 500 m radius
	second, created, err := ix.Assign(context.Background(), "Jakarta", -6.2088, 106.8456)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("distant report must open its own cluster")
	}
	if second.ID == first.ID {
		t.Fatal("distant report joined an unrelated cluster")
	}
}

func TestAssignBoundaryDistance(t *testing.T) {
	t.Run("inside radius", func(t *testing.T) {
		ix := newIndex(&fakeStore{})
		first, _, err := ix.Assign(context.Background(), "Pusat", -6.9175, 107.6191)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lat := -6.9175 + 450.0/111_000.0
		if d := utils.HaversineMeters(first.CenterLat, first.CenterLon, lat, first.CenterLon); d >= 500 {
			t.Fatalf("test point unexpectedly outside radius: %f", d)
		}
		_, created, err := ix.Assign(context.Background(), "Pusat", lat, first.CenterLon)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if created {
			t.Fatal("point inside the radius should join, not create")
		}
	})

	t.Run("outside radius", func(t *testing.T) {
		ix := newIndex(&fakeStore{})
		first, _, err := ix.Assign(context.Background(), "Pusat", -6.9175, 107.6191)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lat := -6.9175 + 600.0/111_000.0
		if d := utils.HaversineMeters(first.CenterLat, first.CenterLon, lat, first.CenterLon); d <= 500 {
			t.Fatalf("test point unexpectedly inside radius: %f", d)
		}
		_, created, err := ix.Assign(context.Background(), "Pinggir", lat, first.CenterLon)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !created {
			t.Fatal("point outside the radius should create its own cluster")
		}
	})
}
