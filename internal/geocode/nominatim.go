package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/lapor-kita/backend/internal/pipeline"
)

// NominatimGeocoder talks to a Nominatim-compatible search endpoint. It
// enforces the service's minimum request interval and caches answers per
// normalized query for CacheTTL.
type NominatimGeocoder struct {
	BaseURL      string
	UserAgent    string
	MinInterval  time.Duration
	CountryCodes string
	CacheTTL     time.Duration
	Client       *http.Client

	// Now is the clock used for cache expiry and throttling; tests override it.
	Now func() time.Time

	mu        sync.Mutex
	lastReqAt time.Time
	cache     map[string]cacheEntry
}

type cacheEntry struct {
	result   *Result
	storedAt time.Time
}

type nominatimItem struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	DisplayName string   `json:"display_name"`
	OSMID       *int64   `json:"osm_id"`
	OSMType     *string  `json:"osm_type"`
	Importance  *float64 `json:"importance"`
	BoundingBox []string `json:"boundingbox"`
	Address     Address  `json:"address"`
}

func (g *NominatimGeocoder) init() {
	if g.Client == nil {
		g.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if g.BaseURL == "" {
		g.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if g.UserAgent == "" {
		g.UserAgent = "lapor-kita-backend/1.0 (citizen-report-system)"
	}
	if g.MinInterval <= 0 {
		g.MinInterval = time.Second
	}
	if g.CacheTTL <= 0 {
		g.CacheTTL = time.Hour
	}
	if g.Now == nil {
		g.Now = time.Now
	}
	if g.cache == nil {
		g.cache = map[string]cacheEntry{}
	}
}

// Search resolves a free-form query to its top match. A nil result with a
// nil error means the service had no match for the query; the cascade moves
// on to the next level. A non-nil error means the service itself was
// unreachable and the whole job should be retried.
func (g *NominatimGeocoder) Search(ctx context.Context, query string) (*Result, error) {
	g.mu.Lock()
	g.init()
	if cached, ok := g.cache[query]; ok && g.Now().Sub(cached.storedAt) < g.CacheTTL {
		g.mu.Unlock()
		return cached.result, nil
	}
	sleepFor := g.lastReqAt.Add(g.MinInterval).Sub(g.Now())
	if sleepFor > 0 {
		g.mu.Unlock()
		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		g.mu.Lock()
	}
	g.lastReqAt = g.Now()
	g.mu.Unlock()

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&addressdetails=1&limit=1", g.BaseURL, url.QueryEscape(query))
	if g.CountryCodes != "" {
		endpoint += "&countrycodes=" + url.QueryEscape(g.CountryCodes)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pipeline.Externalf("build nominatim request: %v", err)
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, pipeline.Externalf("nominatim request: %v", err)
	}
	defer resp.Body.Close()

	// A non-2xx answer is a miss, not a failure: the service responded, it
	// just could not handle this query. The cascade falls through to a
	// coarser one.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.storeCached(query, nil)
		return nil, nil
	}

	var items []nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, pipeline.Externalf("decode nominatim response: %v", err)
	}
	result, err := parseNominatimItems(items)
	if err != nil {
		return nil, err
	}

	g.storeCached(query, result)
	return result, nil
}

func (g *NominatimGeocoder) storeCached(query string, res *Result) {
	g.mu.Lock()
	g.cache[query] = cacheEntry{result: res, storedAt: g.Now()}
	g.mu.Unlock()
}

func parseNominatimItems(items []nominatimItem) (*Result, error) {
	if len(items) == 0 {
		return nil, nil
	}
	top := items[0]
	lat, err := strconv.ParseFloat(top.Lat, 64)
	if err != nil {
		return nil, pipeline.Externalf("parse nominatim latitude %q: %v", top.Lat, err)
	}
	lon, err := strconv.ParseFloat(top.Lon, 64)
	if err != nil {
		return nil, pipeline.Externalf("parse nominatim longitude %q: %v", top.Lon, err)
	}
	res := &Result{
		Lat:         lat,
		Lon:         lon,
		DisplayName: top.DisplayName,
		OSMID:       top.OSMID,
		OSMType:     top.OSMType,
		Importance:  top.Importance,
		Address:     top.Address,
	}
	for _, raw := range top.BoundingBox {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		res.BoundingBox = append(res.BoundingBox, v)
	}
	return res, nil
}
