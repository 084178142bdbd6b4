// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds all traceperf configuration.
type Config struct {
	Version int `yaml:"version"`

	Engine    EngineConfig    `yaml:"engine"`
	Output    OutputConfig    `yaml:"output"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig controls ingestion and query parallelism.
type EngineConfig struct {
	Workers int `yaml:"workers"` // 0 = auto
	Threads int `yaml:"threads"` // DuckDB threads, 0 = auto
}

// OutputConfig controls the written Parquet dataset.
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"` // snappy | zstd | gzip | none
	BatchSize   int    `yaml:"batch_size"`
}

// ServerConfig for the analysis job API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig for S3 dataset upload.
type StorageConfig struct {
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// RedisConfig enables the persistent job store.
type RedisConfig struct {
	Addr     string `yaml:"addr"` // empty disables Redis
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TelemetryConfig for optional OTLP tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Engine: EngineConfig{
			Workers: 0, // auto
			Threads: 0,
		},
		Output: OutputConfig{
			Dir:         ".",
			Compression: "snappy",
			BatchSize:   8192,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string
}

func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Load builds the effective config from all sources in priority order.
// Missing files are fine; malformed ones are not.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range configPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("config: load %s: %w", path, err)
			}
			continue
		}
		m.paths = append(m.paths, path)
	}

	m.loadEnv()
	return nil
}

func configPaths() []string {
	var paths []string
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/traceperf/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".traceperf", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".traceperf.yaml"))
	}
	return paths
}

func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}
	m.merge(&partial)
	return nil
}

// merge overlays non-zero values from src.
func (m *Manager) merge(src *Config) {
	if src.Engine.Workers != 0 {
		m.config.Engine.Workers = src.Engine.Workers
	}
	if src.Engine.Threads != 0 {
		m.config.Engine.Threads = src.Engine.Threads
	}

	if src.Output.Dir != "" {
		m.config.Output.Dir = src.Output.Dir
	}
	if src.Output.Compression != "" {
		m.config.Output.Compression = src.Output.Compression
	}
	if src.Output.BatchSize != 0 {
		m.config.Output.BatchSize = src.Output.BatchSize
	}

	if src.Server.Host != "" {
		m.config.Server.Host = src.Server.Host
	}
	if src.Server.Port != 0 {
		m.config.Server.Port = src.Server.Port
	}

	if src.Storage.Region != "" {
		m.config.Storage.Region = src.Storage.Region
	}
	if src.Storage.Bucket != "" {
		m.config.Storage.Bucket = src.Storage.Bucket
	}
	if src.Storage.Endpoint != "" {
		m.config.Storage.Endpoint = src.Storage.Endpoint
	}
	if src.Storage.PathStyle {
		m.config.Storage.PathStyle = true
	}

	if src.Redis.Addr != "" {
		m.config.Redis.Addr = src.Redis.Addr
	}
	if src.Redis.Password != "" {
		m.config.Redis.Password = src.Redis.Password
	}
	if src.Redis.DB != 0 {
		m.config.Redis.DB = src.Redis.DB
	}

	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

func (m *Manager) loadEnv() {
	if v := os.Getenv("TRACEPERF_OUTPUT_DIR"); v != "" {
		m.config.Output.Dir = v
	}
	if v := os.Getenv("TRACEPERF_COMPRESSION"); v != "" {
		m.config.Output.Compression = v
	}
	if v := os.Getenv("TRACEPERF_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			m.config.Server.Port = port
		}
	}
	if v := os.Getenv("TRACEPERF_REDIS_ADDR"); v != "" {
		m.config.Redis.Addr = v
	}
	if v := os.Getenv("TRACEPERF_S3_BUCKET"); v != "" {
		m.config.Storage.Bucket = v
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Paths returns the config files that were actually loaded.
func (m *Manager) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(home, ".traceperf")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o644)
}

var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the process-wide configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
