package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

type Config struct {
	Port           string   `envconfig:"PORT" default:"8080"`
	Host           string   `envconfig:"HOST" default:"localhost"`
	Env            string   `envconfig:"APP_ENV" default:"development"`
	DatabaseURL    string   `envconfig:"DATABASE_URL"`
	AuthKey        string   `envconfig:"AUTH_KEY"`
	RedisURL       string   `envconfig:"REDIS_URL"`
	PresenceKey    string   `envconfig:"PRESENCE_KEY" default:"chat:online"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string   `envconfig:"LOG_FORMAT" default:"json"`

	TypingTimeout     time.Duration `envconfig:"TYPING_TIMEOUT" default:"3s"`
	EditWindow        time.Duration `envconfig:"EDIT_WINDOW" default:"30m"`
	MaxMessageLength  int           `envconfig:"MAX_MESSAGE_LENGTH" default:"2000"`
	Retention         time.Duration `envconfig:"RETENTION" default:"24h"`
	RetentionSchedule string        `envconfig:"RETENTION_SCHEDULE" default:"0 * * * *"`

	SendBuffer    int           `envconfig:"SEND_BUFFER" default:"256"`
	PingPeriod    time.Duration `envconfig:"PING_PERIOD" default:"10s"`
	PongWait      time.Duration `envconfig:"PONG_WAIT" default:"60s"`
	WriteWait     time.Duration `envconfig:"WRITE_WAIT" default:"5s"`
	MaxFrameBytes int64         `envconfig:"MAX_FRAME_BYTES" default:"8192"`
}

// Load reads an optional .env file, then the process environment.
func Load(log zerolog.Logger) (*Config, error) {
	log = log.With().Str("component", "config").Logger()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, relying on system environment variables")
	} else {
		log.Debug().Msg("loaded .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ev := log.Info().Str("env", cfg.Env).Str("port", cfg.Port)
	if cfg.DatabaseURL != "" {
		ev = ev.Str("database", MaskDBSource(cfg.DatabaseURL))
	} else {
		ev = ev.Str("database", "memory")
	}
	if cfg.RedisURL != "" {
		ev = ev.Str("presence", "redis")
	} else {
		ev = ev.Str("presence", "memory")
	}
	ev.Bool("auth", cfg.AuthKey != "").Msg("configuration loaded")

	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []error
	positive := map[string]time.Duration{
		"TYPING_TIMEOUT": c.TypingTimeout,
		"EDIT_WINDOW":    c.EditWindow,
		"RETENTION":      c.Retention,
		"PING_PERIOD":    c.PingPeriod,
		"PONG_WAIT":      c.PongWait,
		"WRITE_WAIT":     c.WriteWait,
	}
	for name, d := range positive {
		if d <= 0 {
			problems = append(problems, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.PingPeriod >= c.PongWait {
		problems = append(problems, errors.New("PING_PERIOD must be shorter than PONG_WAIT"))
	}
	if c.MaxMessageLength < 1 {
		problems = append(problems, errors.New("MAX_MESSAGE_LENGTH must be at least 1"))
	}
	if c.SendBuffer < 1 {
		problems = append(problems, errors.New("SEND_BUFFER must be at least 1"))
	}
	if c.MaxFrameBytes < 512 {
		problems = append(problems, errors.New("MAX_FRAME_BYTES must be at least 512"))
	}
	return errors.Join(problems...)
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func MaskDBSource(dsn string) string {
	parts := strings.Split(dsn, "@")
	if len(parts) < 2 {
		return "invalid-dsn-format"
	}
	return "postgres://****:****@" + parts[len(parts)-1]
}
