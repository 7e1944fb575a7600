package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultDataPath         = "./data"
	DefaultMaxDistanceDepth = 6
	DefaultWorkers          = 1
	DefaultQueueSize        = 1024
	DefaultEnqueueTimeout   = 250 * time.Millisecond
	DefaultCacheRoots       = 1024
	DefaultLogLevel         = "info"
)

// Config is the on-disk configuration of a nostrdb instance.
type Config struct {
	DataPath                  string        `yaml:"data_path"`
	MinimumFreeGB             int           `yaml:"minimum_free_gb"`
	SyncWrites                bool          `yaml:"sync_writes"`
	SkipSignatureVerification bool          `yaml:"skip_signature_verification"`
	MaxDistanceDepth          *int          `yaml:"max_distance_depth"`
	Root                      string        `yaml:"root"`
	Workers                   int           `yaml:"workers"`
	QueueSize                 int           `yaml:"queue_size"`
	EnqueueTimeout            time.Duration `yaml:"enqueue_timeout"`
	DistanceCacheRoots        int64         `yaml:"distance_cache_roots"`
	StoreRawEvents            bool          `yaml:"store_raw_events"`
	LogLevel                  string        `yaml:"log_level"`
}

// Load reads path and fills in defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.UnmarshalStrict(data, &config); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var config Config
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.DataPath == "" {
		c.DataPath = DefaultDataPath
	}
	if c.MaxDistanceDepth == nil {
		depth := DefaultMaxDistanceDepth
		c.MaxDistanceDepth = &depth
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.EnqueueTimeout == 0 {
		c.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if c.DistanceCacheRoots == 0 {
		c.DistanceCacheRoots = DefaultCacheRoots
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

func (c Config) Validate() error {
	if c.MaxDistanceDepth != nil && *c.MaxDistanceDepth < 0 {
		return fmt.Errorf("config: max_distance_depth must not be negative, got %d", *c.MaxDistanceDepth)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("config: queue_size must not be negative, got %d", c.QueueSize)
	}
	if c.MinimumFreeGB < 0 {
		return fmt.Errorf("config: minimum_free_gb must not be negative, got %d", c.MinimumFreeGB)
	}
	return nil
}
