package config

import (
	"fmt"
	"os"

	"vizmigrate/pkg/types"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBatchSize         = 500
	DefaultHeartbeatInterval = 10
	DefaultReportDir         = "query_context_results"
	DefaultLogPath           = "logs/vizmigrate.log"
)

// LoadConfig loads configuration from config.yaml file
func LoadConfig(configPath string) (*types.Config, error) {
	// If no path provided, use default
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse builds a validated configuration from raw YAML.
func Parse(data []byte) (*types.Config, error) {
	// Optional .env file; values already present in the environment win.
	if _, err := os.Stat(".env"); err == nil {
		if m, err := godotenv.Read(".env"); err == nil {
			for k, v := range m {
				if os.Getenv(k) == "" {
					os.Setenv(k, v)
				}
			}
		}
	}

	// ${DATABASE_PASSWORD} style placeholders are filled from the environment.
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	var config types.Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *types.Config) {
	if config.Migration.BatchSize == 0 {
		config.Migration.BatchSize = DefaultBatchSize
	}
	if config.Migration.HeartbeatBatchInterval <= 0 {
		config.Migration.HeartbeatBatchInterval = DefaultHeartbeatInterval
	}
	if config.Report.Dir == "" {
		config.Report.Dir = DefaultReportDir
	}
	if config.Processing.LogPath == "" {
		config.Processing.LogPath = DefaultLogPath
	}
}

// validateConfig performs basic validation on the configuration
func validateConfig(config *types.Config) error {
	switch config.Database.Type {
	case "":
		return fmt.Errorf("database.type is required")
	case "sqlite":
		if config.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "mysql", "postgres", "sqlserver":
		if config.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if config.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
	default:
		return fmt.Errorf("database.type %q is not supported (mysql, postgres, sqlite, sqlserver)", config.Database.Type)
	}

	if config.Migration.BatchSize < 0 {
		return fmt.Errorf("migration.batch_size must not be negative")
	}
	if config.Migration.ResumeAfterID < 0 {
		return fmt.Errorf("migration.resume_after_id must not be negative")
	}

	return nil
}
