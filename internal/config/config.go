package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the complete application configuration
type Config struct {
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Transcriber TranscriberConfig `toml:"transcriber"`
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
}

// PipelineConfig represents the fragment pipeline configuration
type PipelineConfig struct {
	InboxDir             string   `toml:"inbox_dir"`
	ProcessedDir         string   `toml:"processed_dir"`
	FailedDir            string   `toml:"failed_dir"`
	ArchiveDir           string   `toml:"archive_dir"`
	Workers              int      `toml:"workers"`
	QueueCapacity        int      `toml:"queue_capacity"`
	PollIntervalMs       int      `toml:"poll_interval_ms"`
	MergeIntervalSeconds int      `toml:"merge_interval_seconds"`
	StartSeq             int64    `toml:"start_seq"`
	MinFreeDiskMB        int64    `toml:"min_free_disk_mb"`
	ArchiveOriginals     bool     `toml:"archive_originals"`
	Extensions           []string `toml:"extensions"`
}

// TranscriberConfig represents the speech-recognition backend configuration
type TranscriberConfig struct {
	Backend        string `toml:"backend"` // "openai" or "static"
	OpenAIAPIKey   string `toml:"openai_api_key"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	Prompt         string `toml:"prompt"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	StaticText     string `toml:"static_text"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Enabled            bool     `toml:"enabled"`
	Addr               string   `toml:"addr"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// StorageConfig represents the processing-history storage configuration
type StorageConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			InboxDir:             "data/inbox",
			ProcessedDir:         "data/processed",
			FailedDir:            "data/failed",
			ArchiveDir:           "data/archive",
			Workers:              4,
			QueueCapacity:        64,
			PollIntervalMs:       500,
			MergeIntervalSeconds: 10,
			MinFreeDiskMB:        512,
			ArchiveOriginals:     true,
			Extensions:           []string{".wav"},
		},
		Transcriber: TranscriberConfig{
			Backend:        "openai",
			Model:          "whisper-1",
			TimeoutSeconds: 120,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":8572",
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    "data/seqscribe.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads the configuration from the given TOML file, applying defaults
// for any fields the file leaves unset
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.QueueCapacity < 1 {
		return fmt.Errorf("pipeline.queue_capacity must be at least 1, got %d", c.Pipeline.QueueCapacity)
	}
	if c.Pipeline.PollIntervalMs < 1 {
		return fmt.Errorf("pipeline.poll_interval_ms must be at least 1, got %d", c.Pipeline.PollIntervalMs)
	}
	if c.Pipeline.MergeIntervalSeconds < 1 {
		return fmt.Errorf("pipeline.merge_interval_seconds must be at least 1, got %d", c.Pipeline.MergeIntervalSeconds)
	}
	if c.Pipeline.StartSeq < 0 {
		return fmt.Errorf("pipeline.start_seq must not be negative, got %d", c.Pipeline.StartSeq)
	}
	if c.Pipeline.InboxDir == "" {
		return fmt.Errorf("pipeline.inbox_dir must not be empty")
	}
	if c.Pipeline.ArchiveDir == "" {
		return fmt.Errorf("pipeline.archive_dir must not be empty")
	}
	if c.Pipeline.FailedDir == "" {
		return fmt.Errorf("pipeline.failed_dir must not be empty")
	}
	switch c.Transcriber.Backend {
	case "openai", "static":
	default:
		return fmt.Errorf("transcriber.backend must be \"openai\" or \"static\", got %q", c.Transcriber.Backend)
	}
	return nil
}

// PollInterval returns the watcher poll interval as a duration
func (c *PipelineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// MergeInterval returns the merge tick interval as a duration
func (c *PipelineConfig) MergeInterval() time.Duration {
	return time.Duration(c.MergeIntervalSeconds) * time.Second
}

// MinFreeDiskBytes returns the free-disk threshold in bytes
func (c *PipelineConfig) MinFreeDiskBytes() uint64 {
	if c.MinFreeDiskMB <= 0 {
		return 0
	}
	return uint64(c.MinFreeDiskMB) * 1024 * 1024
}
