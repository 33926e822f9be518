package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/levspool/internal/export"
	"github.com/udisondev/levspool/internal/level"
	"github.com/udisondev/levspool/internal/texture"
)

// Config holds all configuration for levspool.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Level        LevelConfig    `yaml:"level"`
	TextureCache texture.Config `yaml:"texture_cache"`
	Export       export.Config  `yaml:"export"`
	Database     DatabaseConfig `yaml:"database"`
}

// LevelConfig locates the level container. Format and sections come from
// the container resolver.
type LevelConfig struct {
	Path     string   `yaml:"path"`
	Format   string   `yaml:"format"` // legacy, prerelease or retail
	Sections Sections `yaml:"sections"`
}

// Sections are the container sections read by the world database.
type Sections struct {
	Map         level.Section `yaml:"map"`
	SpoolInfo   level.Section `yaml:"spool_info"`
	Description level.Section `yaml:"description"`
	Textures    level.Section `yaml:"textures"`
	Data        level.Section `yaml:"data"`
	Spool       level.Section `yaml:"spool"`
}

// Layout converts the level configuration into a container layout.
func (l LevelConfig) Layout() (level.Layout, error) {
	format, err := level.ParseFormat(l.Format)
	if err != nil {
		return level.Layout{}, err
	}
	if l.Sections.Map.Size <= 0 || l.Sections.SpoolInfo.Size <= 0 {
		return level.Layout{}, fmt.Errorf("level %s: map and spool_info sections are required", l.Path)
	}
	return level.Layout{
		Format:      format,
		Map:         l.Sections.Map,
		SpoolInfo:   l.Sections.SpoolInfo,
		Description: l.Sections.Description,
		Textures:    l.Sections.Textures,
		Data:        l.Sections.Data,
		Spool:       l.Sections.Spool,
	}, nil
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Default returns Config with sensible defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Level: LevelConfig{
			Format: "retail",
		},
		TextureCache: texture.DefaultConfig(),
		Export:       export.DefaultConfig(),
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "levspool",
			Password: "levspool",
			DBName:   "levspool",
			SSLMode:  "disable",
		},
	}
}

// Load loads config from a YAML file.
// If the file doesn't exist, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
