package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseNominatimItems(t *testing.T) {
	imp := 0.72
	items := []nominatimItem{
		{
			Lat:         "-6.9175",
			Lon:         "107.6191",
			DisplayName: "Bandung, Jawa Barat, Indonesia",
			Importance:  &imp,
			BoundingBox: []string{"-7.1", "-6.8", "107.5", "107.7"},
			Address:     Address{County: strptr("Bandung"), State: strptr("Jawa Barat")},
		},
	}
	res, err := parseNominatimItems(items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lat != -6.9175 || res.Lon != 107.6191 {
		t.Fatalf("unexpected coordinates: %+v", res)
	}
	if res.DisplayName != "Bandung, Jawa Barat, Indonesia" {
		t.Fatalf("unexpected display name: %s", res.DisplayName)
	}
	if res.Importance == nil || *res.Importance != 0.72 {
		t.Fatalf("unexpected importance: %v", res.Importance)
	}
	if len(res.BoundingBox) != 4 {
		t.Fatalf("unexpected bounding box: %v", res.BoundingBox)
	}
	if got := res.Address.Regency(); got == nil || *got != "Bandung" {
		t.Fatalf("unexpected regency: %v", got)
	}
}

func TestParseNominatimItemsEmpty(t *testing.T) {
	res, err := parseNominatimItems(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
}

func TestNominatimSearch(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.Query().Get("q")
		if r.URL.Query().Get("countrycodes") != "id" {
			t.Errorf("missing countrycodes parameter")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"lat":"-6.2088","lon":"106.8456","display_name":"Jakarta, Indonesia","address":{"city":"Jakarta","state":"DKI Jakarta"}}]`))
	}))
	defer srv.Close()

	g := &NominatimGeocoder{
		BaseURL:      srv.URL,
		UserAgent:    "test-agent/1.0",
		MinInterval:  time.Millisecond,
		CountryCodes: "id",
	}
	res, err := g.Search(context.Background(), "Jakarta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.Lat != -6.2088 || res.Lon != 106.8456 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gotUA != "test-agent/1.0" {
		t.Fatalf("unexpected user agent: %s", gotUA)
	}
	if gotQuery != "Jakarta" {
		t.Fatalf("unexpected query: %s", gotQuery)
	}
}

func TestNominatimSearchNon2xxIsNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := &NominatimGeocoder{BaseURL: srv.URL, MinInterval: time.Millisecond}
	res, err := g.Search(context.Background(), "anywhere")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected no match, got %+v", res)
	}
}

func TestNominatimCacheTTL(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(`[{"lat":"-6.9","lon":"107.6","display_name":"Bandung"}]`))
	}))
	defer srv.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g := &NominatimGeocoder{
		BaseURL:     srv.URL,
		MinInterval: time.Millisecond,
		CacheTTL:    time.Hour,
		Now:         func() time.Time { return now },
	}

	for i := 0; i < 3; i++ {
		if _, err := g.Search(context.Background(), "Bandung"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one upstream call within TTL, got %d", calls)
	}

	now = now.Add(2 * time.Hour)
	if _, err := g.Search(context.Background(), "Bandung"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected expired entry to refetch, got %d calls", calls)
	}
}

func TestNominatimCachesMisses(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	g := &NominatimGeocoder{BaseURL: srv.URL, MinInterval: time.Millisecond}
	for i := 0; i < 2; i++ {
		res, err := g.Search(context.Background(), "nowhere at all")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res != nil {
			t.Fatalf("expected no match, got %+v", res)
		}
	}
	if calls != 1 {
		t.Fatalf("expected the miss to be cached, got %d calls", calls)
	}
}
