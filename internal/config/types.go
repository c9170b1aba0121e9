package config

// Config is the full runtime configuration. Every field can come from the
// optional config file; the `env` tags name the environment variables that
// override it.
type Config struct {
	Discord DiscordConfig `json:"discord"`
	Trello  TrelloConfig  `json:"trello"`
	Logging LoggingConfig `json:"logging"`
	Pprof   PprofConfig   `json:"pprof,omitempty"`
	Tracing TracingConfig `json:"tracing,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token" env:"DISCORD_TOKEN"`
	// ClientID is the application id used for global command registration.
	ClientID     string `json:"client_id" env:"CLIENT_ID"`
	LogChannelID string `json:"log_channel_id,omitempty" env:"DISCORD_LOG_CHANNEL_ID"`
	// RegisterTimeout bounds the startup command upsert (Go duration string).
	RegisterTimeout string `json:"register_timeout,omitempty"`
	// Workers sizes the interaction worker pool; 0 means max(2, NumCPU).
	Workers int `json:"workers,omitempty"`
}

type TrelloConfig struct {
	BaseURL string `json:"base_url,omitempty" env:"TRELLO_BASE_URL"`
	ListID  string `json:"list_id" env:"TRELLO_LIST_ID"`
	Key     string `json:"key" env:"TRELLO_KEY"`
	Token   string `json:"token" env:"TRELLO_TOKEN"`
	// Timeout is a Go duration string; "0s" keeps the transport defaults.
	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level" env:"LOG_LEVEL"`
	Console *bool          `json:"console,omitempty"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// PprofConfig controls the optional diagnostics server.
//
// Prefer a loopback Addr; a non-loopback bind needs Token or AllowInsecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

// TracingConfig enables OTLP/HTTP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string `json:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `json:"service_name,omitempty" env:"OTEL_SERVICE_NAME"`
}

// ConsoleEnabled reports the console sink flag (default true).
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}
