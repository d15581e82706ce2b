package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/cmip6-download/internal/cds"
	"github.com/i474232898/cmip6-download/internal/cmip6"
	"github.com/i474232898/cmip6-download/internal/common"
)

type AppConfig struct {
	// Climate Data Store credentials.
	CDSURL string `validate:"required,url"`
	CDSKey string

	Catalog cmip6.Catalog

	DataDir  string `validate:"required"`
	ErrorLog string `validate:"required"`

	// HTTPTimeout bounds every single API call, not a whole retrieval.
	HTTPTimeout     time.Duration `validate:"gt=0"`
	PollInterval    time.Duration `validate:"gt=0"`
	PollMaxInterval time.Duration `validate:"gtefield=PollInterval"`

	// RunInterval re-runs the batch on a schedule (0 = run once).
	RunInterval time.Duration `validate:"gte=0"`

	// In-memory store retention.
	StoreMaxRuns int `validate:"gte=0"` // max number of runs kept (0 = unlimited)

	// StatusPort enables the read-only status API when set.
	StatusPort string `validate:"omitempty,numeric"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	cfg := &AppConfig{}

	url, key, err := loadCredentials()
	if err != nil {
		return nil, err
	}
	cfg.CDSURL = url
	cfg.CDSKey = key

	cfg.Catalog = cmip6.DefaultCatalog().WithSelection(
		common.SplitList(os.Getenv("CMIP6_MODELS")),
		common.SplitList(os.Getenv("CMIP6_SCENARIOS")),
		common.SplitList(os.Getenv("CMIP6_VARIABLES")),
	)

	cfg.DataDir = getenvDefault("DATA_DIR", "data")
	cfg.ErrorLog = getenvDefault("ERROR_LOG", "error.log")

	if cfg.HTTPTimeout, err = getenvDuration("CDS_HTTP_TIMEOUT", "1m"); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getenvDuration("CDS_POLL_INTERVAL", "1s"); err != nil {
		return nil, err
	}
	if cfg.PollMaxInterval, err = getenvDuration("CDS_POLL_MAX_INTERVAL", "2m"); err != nil {
		return nil, err
	}
	if cfg.RunInterval, err = getenvDuration("RUN_INTERVAL", "0"); err != nil {
		return nil, err
	}

	cfg.StoreMaxRuns = getenvInt("STORE_MAX_RUNS", 10)
	cfg.StatusPort = os.Getenv("STATUS_PORT")

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ClientOptions maps the configuration onto CDS client options.
func (c *AppConfig) ClientOptions() cds.Options {
	opts := cds.DefaultOptions()
	opts.URL = c.CDSURL
	opts.Key = c.CDSKey
	opts.PollInterval = c.PollInterval
	opts.PollMaxInterval = c.PollMaxInterval
	opts.HTTP.RequestTimeout = c.HTTPTimeout
	return opts
}

// loadCredentials prefers CDSAPI_URL/CDSAPI_KEY and falls back to the
// ~/.cdsapirc file ("url: ..." and "key: ..." lines). A missing key is not an
// error here; the client refuses to submit requests without one.
func loadCredentials() (string, string, error) {
	url := os.Getenv("CDSAPI_URL")
	key := os.Getenv("CDSAPI_KEY")
	if url != "" && key != "" {
		return url, key, nil
	}

	rc, err := rcPath()
	if err != nil {
		return "", "", err
	}
	values, err := godotenv.Read(rc)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("path", rc).Msg("no CDS credentials file")
	case err != nil:
		return "", "", fmt.Errorf("read %s: %w", rc, err)
	default:
		if url == "" {
			url = values["url"]
		}
		if key == "" {
			key = values["key"]
		}
	}

	if url == "" {
		url = cds.DefaultURL
	}
	return url, key, nil
}

func rcPath() (string, error) {
	if p := os.Getenv("CDSAPI_RC"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate CDS credentials file: %w", err)
	}
	return filepath.Join(home, ".cdsapirc"), nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
