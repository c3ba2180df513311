package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wfunc/simon/logger"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     logger.Config `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Timer   TimerConfig   `mapstructure:"timer"`
	Game    GameConfig    `mapstructure:"game"`
}

type ServerConfig struct {
	HTTPAddress        string        `mapstructure:"http_address"`
	RPCAddress         string        `mapstructure:"rpc_address"`
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout"`
	IdleSweepInterval  time.Duration `mapstructure:"idle_sweep_interval"`
	MaxSpectators      int           `mapstructure:"max_spectators"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

type TimerConfig struct {
	Resolution time.Duration `mapstructure:"resolution"`
}

// GameConfig holds the symbol alphabet, the cue timings and the cue → sound mapping.
type GameConfig struct {
	Symbols    []string          `mapstructure:"symbols"`
	Hold       time.Duration     `mapstructure:"hold"`
	Gap        time.Duration     `mapstructure:"gap"`
	InputDelay time.Duration     `mapstructure:"input_delay"`
	Settle     time.Duration     `mapstructure:"settle"`
	Sounds     map[string]string `mapstructure:"sounds"`
}

var (
	ErrTooFewSymbols    = errors.New("game.symbols needs at least two symbols")
	ErrDuplicateSymbol  = errors.New("game.symbols contains a duplicate")
	ErrNegativeDuration = errors.New("durations must not be negative")
	ErrTimerResolution  = errors.New("timer.resolution must be positive")
	ErrMissingPause     = errors.New("game.input_delay and game.settle must be positive")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", "")
	v.SetDefault("server.session_idle_timeout", "2m")
	v.SetDefault("server.idle_sweep_interval", "30s")
	v.SetDefault("server.max_spectators", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("metrics.namespace", "simon")

	v.SetDefault("timer.resolution", "10ms")

	v.SetDefault("game.symbols", []string{"green", "red", "yellow", "blue"})
	v.SetDefault("game.hold", "500ms")
	v.SetDefault("game.gap", "500ms")
	v.SetDefault("game.input_delay", "1s")
	v.SetDefault("game.settle", "1100ms")
	v.SetDefault("game.sounds", map[string]string{
		"green":   "/sounds/green.wav",
		"red":     "/sounds/red.wav",
		"yellow":  "/sounds/yellow.wav",
		"blue":    "/sounds/blue.wav",
		"success": "/sounds/success.wav",
		"error":   "/sounds/error.wav",
	})
}

// LoadConfig reads config.yaml from path. A missing file is not an error; defaults
// and SIMON_* environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SIMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the game core relies on.
func (c *Config) Validate() error {
	if len(c.Game.Symbols) < 2 {
		return ErrTooFewSymbols
	}
	seen := make(map[string]struct{}, len(c.Game.Symbols))
	for _, s := range c.Game.Symbols {
		key := strings.ToLower(strings.TrimSpace(s))
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateSymbol, s)
		}
		seen[key] = struct{}{}
	}

	durations := map[string]time.Duration{
		"game.hold":                   c.Game.Hold,
		"game.gap":                    c.Game.Gap,
		"game.input_delay":            c.Game.InputDelay,
		"game.settle":                 c.Game.Settle,
		"server.session_idle_timeout": c.Server.SessionIdleTimeout,
		"server.idle_sweep_interval":  c.Server.IdleSweepInterval,
	}
	for key, d := range durations {
		if d < 0 {
			return fmt.Errorf("%w: %s=%v", ErrNegativeDuration, key, d)
		}
	}
	if c.Game.InputDelay <= 0 || c.Game.Settle <= 0 {
		return ErrMissingPause
	}
	if c.Timer.Resolution <= 0 {
		return ErrTimerResolution
	}
	return nil
}
