package config

// --- YAML-Specific Structs ---

// YamlFirestoreConfig configures the Firestore message store backend.
type YamlFirestoreConfig struct {
	ProjectID  string `yaml:"project_id"`
	Collection string `yaml:"collection"`
}

// YamlPostgresConfig configures the Postgres message store backend. The
// DSN itself comes from the environment, never the file.
type YamlPostgresConfig struct {
	DSNEnv string `yaml:"dsn_env"`
}

// YamlMessageStoreConfig selects and configures the MessageStore backend.
type YamlMessageStoreConfig struct {
	Type      string              `yaml:"type"` // "firestore", "postgres" or "memory"
	Firestore YamlFirestoreConfig `yaml:"firestore"`
	Postgres  YamlPostgresConfig  `yaml:"postgres"`
}

// YamlWebSocketConfig tunes per-connection behavior.
type YamlWebSocketConfig struct {
	MaxMessageSizeBytes int64 `yaml:"max_message_size_bytes"`
	AuthTimeoutSeconds  int   `yaml:"auth_timeout_seconds"`
	PongWaitSeconds     int   `yaml:"pong_wait_seconds"`
	SendBuffer          int   `yaml:"send_buffer"`
}

// YamlConfig defines the structure for unmarshaling the embedded
// config.yaml file.
type YamlConfig struct {
	ServiceName    string                 `yaml:"service_name"`
	RunMode        string                 `yaml:"run_mode"`
	APIPort        string                 `yaml:"api_port"`
	WebSocketPort  string                 `yaml:"websocket_port"`
	TokenSecretEnv string                 `yaml:"token_secret_env"`
	MessageStore   YamlMessageStoreConfig `yaml:"message_store"`
	WebSocket      YamlWebSocketConfig    `yaml:"websocket"`
}

// NewConfigFromYaml converts the raw unmarshaled data into a base
// AppConfig. Stage 1 of configuration loading; environment overrides and
// validation happen in Stage 2.
func NewConfigFromYaml(yamlCfg *YamlConfig) (*AppConfig, error) {
	return &AppConfig{
		ServiceName:    yamlCfg.ServiceName,
		RunMode:        yamlCfg.RunMode,
		APIPort:        yamlCfg.APIPort,
		WebSocketPort:  yamlCfg.WebSocketPort,
		TokenSecretEnv: yamlCfg.TokenSecretEnv,
		MessageStore:   yamlCfg.MessageStore,
		WebSocket:      yamlCfg.WebSocket,
	}, nil
}
