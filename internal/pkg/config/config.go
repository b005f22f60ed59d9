package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Health   HealthConfig   `yaml:"health"`
	Game     GameConfig     `yaml:"game"`
}

type TelegramConfig struct {
	// Token can come from the environment so the yaml file stays
	// secret-free in version control.
	Token string `yaml:"token" env:"HIGHROLLER_TELEGRAM_TOKEN"`

	// ChannelID is the group chat where public challenges are announced.
	ChannelID     int64 `yaml:"channel_id" env:"HIGHROLLER_CHANNEL_ID"`
	UpdateTimeout int   `yaml:"update_timeout"`
}

type PostgresConfig struct {
	// DSN empty means the bot runs on the in-memory store (dev mode).
	DSN string `yaml:"dsn" env:"HIGHROLLER_POSTGRES_DSN"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// File enables an additional JSON log stream next to stdout.
	File string `yaml:"file"`
}

type HealthConfig struct {
	// Addr empty disables the HTTP health endpoints.
	Addr string `yaml:"addr"`
}

type GameConfig struct {
	StartingChips   int           `yaml:"starting_chips"`
	DefaultDuration time.Duration `yaml:"default_duration"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	MapSizes        []string      `yaml:"map_sizes"`
	MapSurfaces     []string      `yaml:"map_surfaces"`
	Tribes          []string      `yaml:"tribes"`
	Admins          []int64       `yaml:"admins"`
}

// Maps returns the valid map pool: every size combined with every surface.
func (g *GameConfig) Maps() []string {
	maps := make([]string, 0, len(g.MapSizes)*len(g.MapSurfaces))
	for _, size := range g.MapSizes {
		for _, surface := range g.MapSurfaces {
			maps = append(maps, size+" "+surface)
		}
	}
	return maps
}

// IsAdmin reports whether the player id is in the configured admin list.
func (g *GameConfig) IsAdmin(playerID int64) bool {
	for _, id := range g.Admins {
		if id == playerID {
			return true
		}
	}
	return false
}

// Load reads the yaml file, applies environment overrides and fills
// defaults. The result is read once at startup and passed into the core as
// plain values; nothing re-reads configuration mid-operation.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Telegram.UpdateTimeout == 0 {
		c.Telegram.UpdateTimeout = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Game.StartingChips == 0 {
		c.Game.StartingChips = 10
	}
	if c.Game.DefaultDuration == 0 {
		c.Game.DefaultDuration = 24 * time.Hour
	}
	if c.Game.SweepInterval == 0 {
		c.Game.SweepInterval = time.Minute
	}
	if len(c.Game.MapSizes) == 0 {
		c.Game.MapSizes = []string{"small", "normal", "large", "huge"}
	}
	if len(c.Game.MapSurfaces) == 0 {
		c.Game.MapSurfaces = []string{"drylands", "lakes", "continents"}
	}
	if len(c.Game.Tribes) == 0 {
		c.Game.Tribes = []string{
			"Xin-xi", "Imperius", "Bardur", "Oumaji", "Kickoo", "Hoodrick",
			"Luxidoor", "Vengir", "Zebasi", "Ai-Mo", "Quetzali", "Yădakk",
			"Aquarion", "Elyrion", "Polaris", "Cymanti",
		}
	}
}

// Validate checks the parts of the configuration the bot cannot run without.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required (telegram.token or HIGHROLLER_TELEGRAM_TOKEN)")
	}
	return nil
}
