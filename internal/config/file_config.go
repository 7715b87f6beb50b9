package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var defaultConfigFilenames = []string{
	"taskqueue.yaml",
	"taskqueue.yml",
	"taskqueue.toml",
}

// FileConfig mirrors Config in a config file. Unset fields keep their
// defaults.
type FileConfig struct {
	Server    ServerFileConfig    `yaml:"server" toml:"server"`
	Store     StoreFileConfig     `yaml:"store" toml:"store"`
	Documents DocumentsFileConfig `yaml:"documents" toml:"documents"`
	TaskTypes []string            `yaml:"task_types" toml:"task_types"`
	RateLimit RateLimitFileConfig `yaml:"rate_limit" toml:"rate_limit"`
	Telemetry TelemetryFileConfig `yaml:"telemetry" toml:"telemetry"`
	Log       LogFileConfig       `yaml:"log" toml:"log"`
	Metrics   MetricsFileConfig   `yaml:"metrics" toml:"metrics"`
}

type ServerFileConfig struct {
	Port                *int   `yaml:"port" toml:"port"`
	ReadTimeout         string `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout        string `yaml:"write_timeout" toml:"write_timeout"`
	MaxRequestBodyBytes *int64 `yaml:"max_request_body_bytes" toml:"max_request_body_bytes"`
}

type StoreFileConfig struct {
	Driver                 string `yaml:"driver" toml:"driver"`
	DatabaseURL            string `yaml:"database_url" toml:"database_url"`
	SQLitePath             string `yaml:"sqlite_path" toml:"sqlite_path"`
	SkipEmbeddedMigrations *bool  `yaml:"skip_embedded_migrations" toml:"skip_embedded_migrations"`
}

type DocumentsFileConfig struct {
	URL         string `yaml:"url" toml:"url"`
	Timeout     string `yaml:"timeout" toml:"timeout"`
	Concurrency *int   `yaml:"concurrency" toml:"concurrency"`
}

type RateLimitFileConfig struct {
	Enabled *bool    `yaml:"enabled" toml:"enabled"`
	RPS     *float64 `yaml:"rps" toml:"rps"`
	Burst   *int     `yaml:"burst" toml:"burst"`
}

type TelemetryFileConfig struct {
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
	Insecure    *bool  `yaml:"insecure" toml:"insecure"`
}

type LogFileConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type MetricsFileConfig struct {
	Interval string `yaml:"interval" toml:"interval"`
}

// ResolveConfigPath returns TASKQUEUE_CONFIG, or the first default config
// file present in the working directory, or "" when there is none.
func ResolveConfigPath() (string, error) {
	if env := os.Getenv("TASKQUEUE_CONFIG"); env != "" {
		if !fileExists(env) {
			return "", fmt.Errorf("config: TASKQUEUE_CONFIG=%q does not exist", env)
		}
		return env, nil
	}
	for _, name := range defaultConfigFilenames {
		if fileExists(name) {
			return name, nil
		}
	}
	return "", nil
}

// LoadFileConfig parses the YAML or TOML file at path. An empty path
// yields nil.
func LoadFileConfig(path string) (*FileConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read config file: %w", err)
	}

	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse toml config: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported config extension: %s", filepath.Ext(path))
	}
	return &cfg, nil
}

// ApplyFileConfig copies every set field of fileCfg onto cfg.
func ApplyFileConfig(cfg *Config, fileCfg *FileConfig) error {
	if fileCfg == nil {
		return nil
	}
	var errs []error
	duration := func(field, raw string, dst *time.Duration) {
		if raw == "" {
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q is not a valid duration", field, raw))
			return
		}
		*dst = d
	}

	s := fileCfg.Server
	if s.Port != nil {
		cfg.Port = *s.Port
	}
	duration("server.read_timeout", s.ReadTimeout, &cfg.ReadTimeout)
	duration("server.write_timeout", s.WriteTimeout, &cfg.WriteTimeout)
	if s.MaxRequestBodyBytes != nil {
		cfg.MaxRequestBodyBytes = *s.MaxRequestBodyBytes
	}

	st := fileCfg.Store
	if st.Driver != "" {
		cfg.Store = st.Driver
	}
	if st.DatabaseURL != "" {
		cfg.DatabaseURL = st.DatabaseURL
	}
	if st.SQLitePath != "" {
		cfg.SQLitePath = st.SQLitePath
	}
	if st.SkipEmbeddedMigrations != nil {
		cfg.SkipEmbeddedMigrations = *st.SkipEmbeddedMigrations
	}

	d := fileCfg.Documents
	if d.URL != "" {
		cfg.DocumentServiceURL = d.URL
	}
	duration("documents.timeout", d.Timeout, &cfg.DocumentTimeout)
	if d.Concurrency != nil {
		cfg.DocumentConcurrency = *d.Concurrency
	}

	if len(fileCfg.TaskTypes) > 0 {
		cfg.SeedTaskTypes = append([]string{}, fileCfg.TaskTypes...)
	}

	rl := fileCfg.RateLimit
	if rl.Enabled != nil {
		cfg.RateLimitEnabled = *rl.Enabled
	}
	if rl.RPS != nil {
		cfg.RateLimitRPS = *rl.RPS
	}
	if rl.Burst != nil {
		cfg.RateLimitBurst = *rl.Burst
	}

	tel := fileCfg.Telemetry
	if tel.Endpoint != "" {
		cfg.OTELEndpoint = tel.Endpoint
	}
	if tel.ServiceName != "" {
		cfg.ServiceName = tel.ServiceName
	}
	if tel.Insecure != nil {
		cfg.OTELInsecure = *tel.Insecure
	}

	if fileCfg.Log.Level != "" {
		cfg.LogLevel = fileCfg.Log.Level
	}
	if fileCfg.Log.Format != "" {
		cfg.LogFormat = fileCfg.Log.Format
	}
	duration("metrics.interval", fileCfg.Metrics.Interval, &cfg.MetricsInterval)

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
