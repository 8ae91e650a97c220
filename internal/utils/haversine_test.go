package utils

import (
	"math"
	"testing"
)

func TestHaversineSamePoint(t *testing.T) {
	d := HaversineMeters(-6.2088, 106.8456, -6.2088, 106.8456)
	if d >= 1.0 {
		t.Fatalf("expected near-zero distance for identical points, got %f", d)
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := HaversineMeters(-6.2088, 106.8456, -6.9175, 107.6191)
	b := HaversineMeters(-6.9175, 107.6191, -6.2088, 106.8456)
	if math.Abs(a-b) > 1e-6 {
		t.Fatalf("expected symmetric distance, got %f vs %f", a, b)
	}
}

func TestHaversineJakartaBandung(t *testing.T) {
	// Great-circle distance is roughly 116km even though the road is ~140km.
	d := HaversineMeters(-6.2088, 106.8456, -6.9175, 107.6191)
	if d < 110_000 || d > 125_000 {
		t.Fatalf("expected ~116km, got %f m", d)
	}
}
