// Package config loads Vigil process configuration.
package config

// Config represents the core Vigil configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig configures the job scheduler
type SchedulerConfig struct {
	// How often the scanner looks for newly defined triggers (default: 300)
	ScanIntervalSeconds int `mapstructure:"scan_interval_seconds"`
	// Hard cap on concurrent scheduler work: the scanner loop plus every
	// per-job execution loop share this pool (default: 100)
	MaxWorkers int `mapstructure:"max_workers"`
}

// ServerConfig configures the management HTTP API
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// OpenAIConfig configures notification content generation
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}
