package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"stage-manager/internal/stage"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreValkey   = "valkey"
)

type Config struct {
	Port                     string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
	DBConnMaxIdleTimeSeconds int
	DBAutoMigrate            bool
	StoreBackend             string
	ValkeyAddr               string
	RelayURL                 string
	RelayJWTSecret           string
	TokenTTLSeconds          int
	SyncIntervalMS           int
	SendQueueSize            int
	BroadcastWorkers         int
	ScreenWidth              float64
	ScreenHeight             float64
	VisualArea               stage.Rect
}

func Default() Config {
	return Config{
		Port:                     "8080",
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		DBConnMaxIdleTimeSeconds: 60,
		StoreBackend:             StoreMemory,
		ValkeyAddr:               "127.0.0.1:6379",
		RelayURL:                 "ws://127.0.0.1:8080",
		TokenTTLSeconds:          12 * 60 * 60,
		SyncIntervalMS:           100,
		SendQueueSize:            256,
		BroadcastWorkers:         8,
		ScreenWidth:              1920,
		ScreenHeight:             1080,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Port = raw
	}
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxOpenConns = value
		}
	}
	if raw := os.Getenv("DB_MAX_IDLE_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxIdleConns = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxLifetimeSeconds = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_IDLE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxIdleTimeSeconds = value
		}
	}
	if raw := os.Getenv("DB_AUTO_MIGRATE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.DBAutoMigrate = value
		}
	}
	if raw := os.Getenv("STORE_BACKEND"); raw != "" {
		switch raw = strings.ToLower(strings.TrimSpace(raw)); raw {
		case StoreMemory, StorePostgres, StoreValkey:
			cfg.StoreBackend = raw
		}
	}
	if raw := os.Getenv("VALKEY_ADDR"); raw != "" {
		cfg.ValkeyAddr = raw
	}
	if raw := os.Getenv("RELAY_URL"); raw != "" {
		cfg.RelayURL = strings.TrimRight(raw, "/")
	}
	if raw := os.Getenv("RELAY_JWT_SECRET"); raw != "" {
		cfg.RelayJWTSecret = raw
	}
	if raw := os.Getenv("TOKEN_TTL_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.TokenTTLSeconds = value
		}
	}
	if raw := os.Getenv("SYNC_INTERVAL_MS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.SyncIntervalMS = value
		}
	}
	if raw := os.Getenv("SEND_QUEUE_SIZE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.SendQueueSize = value
		}
	}
	if raw := os.Getenv("BROADCAST_WORKERS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.BroadcastWorkers = value
		}
	}
	if raw := os.Getenv("SCREEN_WIDTH"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
			cfg.ScreenWidth = value
		}
	}
	if raw := os.Getenv("SCREEN_HEIGHT"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
			cfg.ScreenHeight = value
		}
	}
	if raw := os.Getenv("VISUAL_AREA"); raw != "" {
		if rect, ok := parseRect(raw); ok {
			cfg.VisualArea = rect
		}
	}
	return cfg
}

func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMS) * time.Millisecond
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

// Viewport builds the client viewport. An unset visual area covers the
// whole screen.
func (c Config) Viewport() stage.Viewport {
	screen := stage.Rect{Width: c.ScreenWidth, Height: c.ScreenHeight}
	area := c.VisualArea
	if area.Width <= 0 || area.Height <= 0 {
		area = screen
	}
	return stage.Viewport{Screen: screen, VisualArea: area}
}

// parseRect reads "x,y,width,height".
func parseRect(raw string) (stage.Rect, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return stage.Rect{}, false
	}
	values := make([]float64, 4)
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return stage.Rect{}, false
		}
		values[i] = value
	}
	return stage.Rect{X: values[0], Y: values[1], Width: values[2], Height: values[3]}, true
}
