package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvProduction disables the dev command namespace.
const EnvProduction = "production"

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken      string        `envconfig:"BOT_TOKEN" required:"true"`
	DBPath        string        `envconfig:"DB_PATH" default:"./data/levelbot.db"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr      string        `envconfig:"HTTP_ADDR" default:":8080"` // healthz
	Env           string        `envconfig:"APP_ENV" default:"production"` // production|dev
	CommandPrefix string        `envconfig:"COMMAND_PREFIX" default:"/"`
	DevWhitelist  []int64       `envconfig:"DEV_WHITELIST"`
	XPCooldown    time.Duration `envconfig:"XP_COOLDOWN" default:"60s"`
	XPBase        int64         `envconfig:"XP_BASE" default:"100"`
	EncryptionKey string        `envconfig:"ENCRYPTION_KEY" required:"true"`
	Workers       int           `envconfig:"WORKERS" default:"8"`
}

// Load reads an optional .env file and then environment variables into Config.
// Variables already present in the environment win over the .env file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.CommandPrefix == "" {
		return cfg, errors.New("COMMAND_PREFIX must not be empty")
	}
	if cfg.XPBase <= 0 {
		return cfg, errors.New("XP_BASE must be positive")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return cfg, nil
}

// DevEnabled reports whether dev commands may run in this deployment.
func (c Config) DevEnabled() bool {
	return c.Env != EnvProduction
}
