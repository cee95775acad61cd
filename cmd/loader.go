// Package cmd holds the shared wiring helpers for the service binaries:
// embedded configuration loading and message store construction.
package cmd

import (
	_ "embed" // Required for go:embed
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ashgrovelabs/go-chat-service/chatservice/config"
)

//go:embed chatservice/config.yaml
var configFile []byte

// Load parses the embedded configuration file and finalizes it with
// environment overrides.
func Load(logger zerolog.Logger) (*config.AppConfig, error) {
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedded yaml config: %w", err)
	}

	appCfg, err := config.NewConfigFromYaml(&yamlCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build config from yaml: %w", err)
	}

	return config.UpdateConfigWithEnvOverrides(appCfg, logger)
}
