package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"roommap/server/internal/models"
)

var (
	ErrEmptyQuery = errors.New("empty search query")
	ErrNoResults  = errors.New("no results found")
)

// Config configures the Nominatim client.
type Config struct {
	BaseURL     string
	UserAgent   string
	CachePath   string // empty disables the on-disk cache
	Timeout     time.Duration
	MinInterval time.Duration
}

// Geocoder resolves free-text searches to a map pin.
type Geocoder struct {
	logger    *logrus.Logger
	config    Config
	cache     map[string]models.SearchPin
	cacheLock sync.RWMutex
	client    *http.Client

	rateLock    sync.Mutex
	lastRequest time.Time
}

func NewGeocoder(logger *logrus.Logger, config Config) *Geocoder {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if config.UserAgent == "" {
		config.UserAgent = "roommap/1.0"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	g := &Geocoder{
		logger: logger,
		config: config,
		cache:  make(map[string]models.SearchPin),
		client: &http.Client{Timeout: config.Timeout},
	}

	// Load cache from file
	g.loadCache()

	return g
}

func (g *Geocoder) loadCache() {
	if g.config.CachePath == "" {
		return
	}
	data, err := os.ReadFile(g.config.CachePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			g.logger.WithError(err).Warn("Could not load geocode cache")
		}
		return
	}

	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.WithError(err).Error("Failed to parse geocode cache")
		g.cache = make(map[string]models.SearchPin)
		return
	}

	g.logger.WithField("entries", len(g.cache)).Info("Loaded geocode cache")
}

// saveCache writes the cache to disk. The caller holds cacheLock.
func (g *Geocoder) saveCache() {
	if g.config.CachePath == "" {
		return
	}
	data, err := json.Marshal(g.cache)
	if err != nil {
		g.logger.WithError(err).Error("Failed to marshal geocode cache")
		return
	}

	if err := os.MkdirAll(filepath.Dir(g.config.CachePath), 0755); err != nil {
		g.logger.WithError(err).Error("Failed to create geocode cache directory")
		return
	}
	if err := os.WriteFile(g.config.CachePath, data, 0644); err != nil {
		g.logger.WithError(err).Error("Failed to save geocode cache")
	}
}

type nominatimResponse []struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func cacheKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Search geocodes a free-text query, preferring results in Korea.
func (g *Geocoder) Search(ctx context.Context, query string) (*models.SearchPin, error) {
	key := cacheKey(query)
	if key == "" {
		return nil, ErrEmptyQuery
	}

	// Check cache first
	g.cacheLock.RLock()
	if pin, ok := g.cache[key]; ok {
		g.cacheLock.RUnlock()
		g.logger.WithFields(logrus.Fields{
			"query":  query,
			"source": "cache",
		}).Debug("Found search result in cache")
		return &pin, nil
	}
	g.cacheLock.RUnlock()

	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"q":            []string{query},
		"format":       []string{"json"},
		"limit":        []string{"1"},
		"countrycodes": []string{"kr"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(g.config.BaseURL, "/")+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", g.config.UserAgent)
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithField("query", query).Error("Geocoding request failed")
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.WithFields(logrus.Fields{
			"query":  query,
			"status": resp.StatusCode,
		}).Error("Geocoding request rejected")
		return nil, fmt.Errorf("geocoding request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result nominatimResponse
	if err := json.Unmarshal(body, &result); err != nil {
		g.logger.WithError(err).WithField("query", query).Error("Failed to parse response")
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result) == 0 {
		g.logger.WithField("query", query).Warn("No results found")
		return nil, fmt.Errorf("%w for %q", ErrNoResults, query)
	}

	lat, err := strconv.ParseFloat(result[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", result[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(result[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", result[0].Lon, err)
	}

	pin := models.SearchPin{Latitude: lat, Longitude: lon, Label: result[0].DisplayName}
	if pin.Label == "" {
		pin.Label = query
	}

	g.logger.WithFields(logrus.Fields{
		"query":     query,
		"latitude":  lat,
		"longitude": lon,
		"source":    "nominatim",
	}).Info("Successfully geocoded search")

	g.cacheLock.Lock()
	g.cache[key] = pin
	g.saveCache()
	g.cacheLock.Unlock()

	return &pin, nil
}

// wait enforces the minimum interval between upstream requests.
func (g *Geocoder) wait(ctx context.Context) error {
	g.rateLock.Lock()
	defer g.rateLock.Unlock()

	if delay := g.config.MinInterval - time.Since(g.lastRequest); delay > 0 && !g.lastRequest.IsZero() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	g.lastRequest = time.Now()
	return nil
}
