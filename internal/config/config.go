package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL       string
	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool
	MetricsAddr       string
	LogLevel          string
	LogFormat         string

	Track         string
	NumSims       int
	NumSteps      int
	MaxSpeed      float64
	SlowDownParam *float64 // nil when unset
	DwellSteps    int
	Seed          int64
	Workers       int
	Verbose       int
	LayoutFile    string

	// ReplayInterval paces NATS publishing to one step per interval. Zero publishes at once.
	ReplayInterval time.Duration
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Result storage DSN: prefer DATABASE_URL / PG_DSN, else build from PG* vars.
	// Storage stays disabled when nothing is configured.
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		if db := os.Getenv("PGDATABASE"); db != "" {
			host := getenvDefault("PGHOST", "127.0.0.1")
			port := getenvDefault("PGPORT", "5432")
			user := getenvDefault("PGUSER", "postgres")
			pass := os.Getenv("PGPASSWORD")
			sslmode := getenvDefault("PGSSLMODE", "disable")
			if pass != "" {
				dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
			} else {
				dsn = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
			}
		}
	}
	cfg.DatabaseURL = dsn

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "RING")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "console")

	cfg.Track = strings.ToLower(getenvDefault("SIM_TRACK", "perfect"))

	var err error
	if cfg.NumSims, err = positiveInt("SIM_NUM_SIMS", 10); err != nil {
		return nil, err
	}
	if cfg.NumSteps, err = positiveInt("SIM_NUM_STEPS", 500); err != nil {
		return nil, err
	}
	if cfg.Workers, err = positiveInt("SIM_WORKERS", runtime.NumCPU()); err != nil {
		return nil, err
	}

	if v := os.Getenv("SIM_MAX_SPEED"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid SIM_MAX_SPEED: %q", v)
		}
		cfg.MaxSpeed = f
	} else {
		cfg.MaxSpeed = 0.5
	}

	// Sigma for the gaussian track, factor for the slow zone track
	if v := os.Getenv("SIM_SLOW_DOWN_PARAM"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid SIM_SLOW_DOWN_PARAM: %q", v)
		}
		cfg.SlowDownParam = &f
	}

	if v := os.Getenv("SIM_DWELL_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid SIM_DWELL_STEPS: %q", v)
		}
		cfg.DwellSteps = n
	}

	if v := os.Getenv("SIM_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SIM_SEED: %q", v)
		}
		cfg.Seed = n
	}

	if v := os.Getenv("SIM_VERBOSE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid SIM_VERBOSE: %q", v)
		}
		cfg.Verbose = n
	}

	cfg.LayoutFile = os.Getenv("LAYOUT_FILE")

	if v := os.Getenv("SIM_REPLAY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid SIM_REPLAY_INTERVAL: %q", v)
		}
		cfg.ReplayInterval = d
	}

	return cfg, nil
}

func positiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
