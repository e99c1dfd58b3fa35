package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Port           string   `env:"PORT" envDefault:"8080"`
		DBPath         string   `env:"DB_PATH" envDefault:"data/roommap.db"`
		AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
		RegionsPath    string   `env:"REGIONS_PATH" envDefault:"config/regions.json"`
		// TickInterval drives the camera command scheduler
		TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"16ms"`
	}

	Geocoding struct {
		BaseURL   string        `env:"NOMINATIM_URL" envDefault:"https://nominatim.openstreetmap.org"`
		UserAgent string        `env:"GEOCODER_USER_AGENT" envDefault:"roommap/1.0"`
		CachePath string        `env:"GEOCODE_CACHE_PATH" envDefault:"data/geocode_cache.json"`
		Timeout   time.Duration `env:"GEOCODER_TIMEOUT" envDefault:"10s"`
		// Nominatim allows one request per second
		MinInterval time.Duration `env:"GEOCODER_MIN_INTERVAL" envDefault:"1s"`
	}

	// Clustering configures the spatial index build
	Clustering struct {
		MinZoom   int     `env:"CLUSTER_MIN_ZOOM" envDefault:"0"`
		MaxZoom   int     `env:"CLUSTER_MAX_ZOOM" envDefault:"16"`
		MinPoints int     `env:"CLUSTER_MIN_POINTS" envDefault:"2"`
		Radius    float64 `env:"CLUSTER_RADIUS" envDefault:"40"`
		Extent    int     `env:"CLUSTER_EXTENT" envDefault:"512"`
		NodeSize  int     `env:"CLUSTER_NODE_SIZE" envDefault:"64"`
	}

	// Viewport bounds the spans a client may request
	Viewport struct {
		MinDelta float64 `env:"VIEWPORT_MIN_DELTA" envDefault:"0.0005"`
		MaxDelta float64 `env:"VIEWPORT_MAX_DELTA" envDefault:"360"`
	}

	// Expansion configures the camera move after a cluster tap
	Expansion struct {
		Padding     float64       `env:"EXPANSION_PADDING" envDefault:"0.1"`
		MinLatDelta float64       `env:"EXPANSION_MIN_LAT_DELTA" envDefault:"0.005"`
		MaxLatDelta float64       `env:"EXPANSION_MAX_LAT_DELTA" envDefault:"0.5"`
		MinLngDelta float64       `env:"EXPANSION_MIN_LNG_DELTA" envDefault:"0.004"`
		MaxLngDelta float64       `env:"EXPANSION_MAX_LNG_DELTA" envDefault:"0.4"`
		Duration    time.Duration `env:"CAMERA_DURATION" envDefault:"500ms"`
	}

	Selection struct {
		// Background taps this soon after a marker tap are ignored
		Debounce       time.Duration `env:"SELECTION_DEBOUNCE" envDefault:"100ms"`
		SheetDuration  time.Duration `env:"SHEET_DURATION" envDefault:"250ms"`
		MarkerCapacity int           `env:"MARKER_CAPACITY" envDefault:"1024"`
	}

	// BatchProcessing configuration
	BatchProcessing struct {
		// Number of listing batches the queue holds before rejecting pushes
		QueueSize int `env:"BATCH_QUEUE_SIZE" envDefault:"100"`

		// Maximum number of listings accepted in one batch
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"1000"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries
		RetryDelay time.Duration `env:"BATCH_RETRY_DELAY" envDefault:"5s"`
	}
}

// LoadConfig reads an optional .env file and then the environment.
func LoadConfig(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
