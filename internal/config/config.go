// Package config loads the YAML configuration file. Defaults are applied
// after decoding, so a missing file or empty section still yields a runnable
// configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

// Duration decodes YAML strings like "90s" or "1h30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Storage struct {
	// Driver selects the backend: sqlite, postgres, bolt, redis, memory.
	Driver string `yaml:"driver"`
	// DSN is the path for sqlite/bolt, the connection string for postgres,
	// or host:port for redis.
	DSN           string `yaml:"dsn"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type Scheduler struct {
	RecurrentTick Duration `yaml:"recurrent_tick"`
	IdleWait      Duration `yaml:"idle_wait"`
	Retention     Duration `yaml:"retention"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type Config struct {
	Listen    string    `yaml:"listen"`
	Workers   int       `yaml:"workers"`
	Storage   Storage   `yaml:"storage"`
	Scheduler Scheduler `yaml:"scheduler"`
	Log       Log       `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Listen:  ":8080",
		Workers: 8,
		Storage: Storage{
			Driver: "sqlite",
			DSN:    "taskwell.db",
		},
		Log: Log{Level: "info", Pretty: true},
	}
}

// Load reads the file at path, or returns defaults when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == "sqlite" {
		cfg.Storage.DSN = "taskwell.db"
	}
	return cfg, nil
}
