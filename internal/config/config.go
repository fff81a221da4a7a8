package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
)

// DevSessionSecret is used when SESSION_SECRET is unset. Fine for local runs only.
const DevSessionSecret = "casasweb-dev-secret-change-me"

type Config struct {
	Port          string        `env:"PORT" envDefault:"8080"`
	APIURL        string        `env:"API_URL" envDefault:"http://localhost:8000/api"`
	APITimeout    time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	DBDSN         string        `env:"DB_DSN" envDefault:"casasweb.db"`
	LogFile       string        `env:"LOG_FILE"`
	SessionSecret string        `env:"SESSION_SECRET"`
	NoticeTTL     time.Duration `env:"NOTICE_TTL" envDefault:"3s"`
	SyncInterval  time.Duration `env:"SYNC_INTERVAL" envDefault:"2s"`
	StateIdle     time.Duration `env:"STATE_IDLE" envDefault:"1h"`
	TemplatesDir  string        `env:"TEMPLATES_DIR" envDefault:"./web/templates"`
}

// Parse reads the configuration from the environment without logging it.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = DevSessionSecret
	}
	return cfg, nil
}

func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if cfg.SessionSecret == DevSessionSecret {
		log.Printf("[config] SESSION_SECRET not set, using development secret")
	}
	log.Printf("[config] PORT=%s API_URL=%s DB_DSN=%s LOG_FILE=%s NOTICE_TTL=%s", cfg.Port, cfg.APIURL, cfg.DBDSN, cfg.LogFile, cfg.NoticeTTL)
	return cfg, nil
}
