// Package config loads and validates the chat service configuration in
// two stages: an embedded YAML file provides the base, environment
// variables override and finalize it.
package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

const defaultTokenSecretEnv = "SESSION_TOKEN_SECRET"

// AppConfig is the canonical, validated configuration object used
// throughout the application.
type AppConfig struct {
	ServiceName    string
	RunMode        string
	APIPort        string
	WebSocketPort  string
	TokenSecretEnv string
	MessageStore   YamlMessageStoreConfig
	WebSocket      YamlWebSocketConfig

	// TokenSecret is resolved from the environment in Stage 2 and never
	// appears in the YAML file.
	TokenSecret []byte
}

// UpdateConfigWithEnvOverrides applies environment variables on top of
// the base configuration and runs final validation. Stage 2 of
// configuration loading.
func UpdateConfigWithEnvOverrides(cfg *AppConfig, logger zerolog.Logger) (*AppConfig, error) {
	logger.Debug().Msg("Applying environment variable overrides...")

	if port := os.Getenv("API_PORT"); port != "" {
		logger.Debug().Str("key", "API_PORT").Msg("Overriding config value from env")
		cfg.APIPort = port
	}
	if port := os.Getenv("WEBSOCKET_PORT"); port != "" {
		logger.Debug().Str("key", "WEBSOCKET_PORT").Msg("Overriding config value from env")
		cfg.WebSocketPort = port
	}
	if runMode := os.Getenv("RUN_MODE"); runMode != "" {
		logger.Debug().Str("key", "RUN_MODE").Msg("Overriding config value from env")
		cfg.RunMode = runMode
	}
	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		logger.Debug().Str("key", "GCP_PROJECT_ID").Msg("Overriding config value from env")
		cfg.MessageStore.Firestore.ProjectID = projectID
	}

	if cfg.TokenSecretEnv == "" {
		cfg.TokenSecretEnv = defaultTokenSecretEnv
	}
	if secret := os.Getenv(cfg.TokenSecretEnv); secret != "" {
		cfg.TokenSecret = []byte(secret)
	}

	// Final validation.
	if cfg.APIPort == "" {
		return nil, fmt.Errorf("api_port is not set in config or env var")
	}
	if cfg.WebSocketPort == "" {
		return nil, fmt.Errorf("websocket_port is not set in config or env var")
	}

	// Local mode fakes the store and mints its own dev tokens; the
	// remaining checks only apply to real backends.
	if cfg.RunMode == "local" {
		logger.Debug().Msg("Configuration finalized for local run mode")
		return cfg, nil
	}

	if len(cfg.TokenSecret) == 0 {
		return nil, fmt.Errorf("session token secret is not set (env %s)", cfg.TokenSecretEnv)
	}
	switch cfg.MessageStore.Type {
	case "firestore":
		if cfg.MessageStore.Firestore.ProjectID == "" {
			return nil, fmt.Errorf("message_store.firestore.project_id is not set in config or env var")
		}
	case "postgres":
		if cfg.MessageStore.Postgres.DSNEnv == "" {
			return nil, fmt.Errorf("message_store.postgres.dsn_env is not set")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unknown message_store.type %q", cfg.MessageStore.Type)
	}

	logger.Debug().Msg("Configuration finalized and validated successfully")
	return cfg, nil
}
