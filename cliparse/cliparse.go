package cliparse

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	DatabaseType string

	// Default mirror location for polls that don't specify one
	ServerRef  string
	ChannelRef string

	// Identity the mirror client acts as; its seed reactions are
	// excluded from reaction-vote agreement checks.
	SelfUser string

	ReconcileInterval time.Duration
	MaxIterations     int
	RepairWorkers     int

	MirrorRate  float64
	MirrorBurst int

	CacheStaleAfter time.Duration
}

// ParseFlags builds the configuration from CLI flags with environment
// fallbacks. A .env file in the working directory is loaded first, if
// present.
func ParseFlags(args []string) (Config, error) {
	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	var cfg Config

	fs := flag.NewFlagSet("pollmirror", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&cfg.ServerRef, "server", "", "Default server ref for new polls")
	fs.StringVar(&cfg.ChannelRef, "channel", "", "Default channel ref for new polls")
	fs.StringVar(&cfg.SelfUser, "self-user", "", "User ref the mirror client acts as")
	fs.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", 0, "Time between reconciliation runs")
	fs.IntVar(&cfg.MaxIterations, "reconcile-iterations", 0, "Detection/repair iteration cap per run")
	fs.IntVar(&cfg.RepairWorkers, "repair-workers", 0, "Concurrent repair actions per pass")
	fs.Float64Var(&cfg.MirrorRate, "mirror-rate", 0, "Mirror API calls per second")
	fs.IntVar(&cfg.MirrorBurst, "mirror-burst", 0, "Mirror API burst size")
	fs.DurationVar(&cfg.CacheStaleAfter, "cache-stale-after", 0, "Cached tally staleness threshold")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Config{}, errors.New("database type must be sqlite or postgres")
	}

	if cfg.ServerRef == "" {
		cfg.ServerRef = os.Getenv("SERVER_REF")
	}
	if cfg.ChannelRef == "" {
		cfg.ChannelRef = os.Getenv("CHANNEL_REF")
	}
	if cfg.ChannelRef == "" {
		return Config{}, errors.New("channel ref required (use -channel or CHANNEL_REF env)")
	}
	if cfg.SelfUser == "" {
		cfg.SelfUser = os.Getenv("SELF_USER")
	}

	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = envDuration("RECONCILE_INTERVAL", 5*time.Minute)
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = envInt("RECONCILE_ITERATIONS", 5)
	}
	if cfg.RepairWorkers == 0 {
		cfg.RepairWorkers = envInt("REPAIR_WORKERS", 4)
	}
	if cfg.MirrorRate == 0 {
		cfg.MirrorRate = envFloat("MIRROR_RATE", 5.0)
	}
	if cfg.MirrorBurst == 0 {
		cfg.MirrorBurst = envInt("MIRROR_BURST", 5)
	}
	if cfg.CacheStaleAfter == 0 {
		cfg.CacheStaleAfter = envDuration("CACHE_STALE_AFTER", 2*time.Minute)
	}

	if cfg.MaxIterations < 1 {
		return Config{}, errors.New("reconcile iteration cap must be at least 1")
	}
	if cfg.RepairWorkers < 1 {
		return Config{}, errors.New("repair workers must be at least 1")
	}

	return cfg, nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}
