package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "vigil.db")

	// Scheduler defaults
	v.SetDefault("scheduler.scan_interval_seconds", 300) // rescan inventory every 5 minutes
	v.SetDefault("scheduler.max_workers", 100)

	// Server defaults
	v.SetDefault("server.port", 8080)

	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.timeout_seconds", 60)
}

// BindSensitiveEnvVars binds credential values to environment variables so
// they never need to live in a config file.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("openai.api_key", "VIGIL_OPENAI_API_KEY", "OPENAI_API_KEY")
}
