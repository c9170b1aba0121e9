package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	yaml "go.yaml.in/yaml/v3"

	logx "shiftbot/pkg/logx"
)

// Load builds a Config from the optional file at path, then overlays
// environment variables and fills defaults. An empty path means env only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = decode(path, b); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// decode accepts JSON or YAML (by extension). YAML is converted to JSON so
// both formats share the strict decoder that rejects unknown keys.
func decode(path string, data []byte) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("yaml unmarshal: %w", err)
		}
		j, err := json.Marshal(normalizeYAML(v))
		if err != nil {
			return nil, fmt.Errorf("yaml->json marshal: %w", err)
		}
		data = j
	}

	var cfg Config
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return &cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// normalizeYAML turns map[any]any into map[string]any so it can be JSON-encoded.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = normalizeYAML(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

const (
	DefaultTrelloBaseURL   = "https://api.trello.com"
	DefaultRegisterTimeout = "15s"
	DefaultServiceName     = "shiftbot"
)

func (c *Config) applyDefaults() {
	c.Discord.Token = strings.TrimSpace(c.Discord.Token)
	c.Discord.ClientID = strings.TrimSpace(c.Discord.ClientID)
	if strings.TrimSpace(c.Discord.RegisterTimeout) == "" {
		c.Discord.RegisterTimeout = DefaultRegisterTimeout
	}
	if strings.TrimSpace(c.Trello.BaseURL) == "" {
		c.Trello.BaseURL = DefaultTrelloBaseURL
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Discord.RatePerSec <= 0 {
		c.Logging.Discord.RatePerSec = 1
	}
	if strings.TrimSpace(c.Tracing.ServiceName) == "" {
		c.Tracing.ServiceName = DefaultServiceName
	}
}

// Validate rejects configs the bot cannot start with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Discord.Token == "" {
		return errors.New("discord.token (DISCORD_TOKEN) is required")
	}
	if c.Discord.Workers < 0 {
		return errors.New("discord.workers must be >= 0")
	}
	if _, err := ParseDurationField("discord.register_timeout", c.Discord.RegisterTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("trello.timeout", c.Trello.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("pprof.read_timeout", c.Pprof.ReadTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("pprof.idle_timeout", c.Pprof.IdleTimeout); err != nil {
		return err
	}
	if !logx.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	if !logx.ValidLevel(c.Logging.Discord.MinLevel) {
		return fmt.Errorf("logging.discord.min_level: unknown level %q", c.Logging.Discord.MinLevel)
	}
	return nil
}

// MissingTrello lists the unset Trello credentials by env name.
func (c *Config) MissingTrello() []string {
	var out []string
	if strings.TrimSpace(c.Trello.ListID) == "" {
		out = append(out, "TRELLO_LIST_ID")
	}
	if strings.TrimSpace(c.Trello.Key) == "" {
		out = append(out, "TRELLO_KEY")
	}
	if strings.TrimSpace(c.Trello.Token) == "" {
		out = append(out, "TRELLO_TOKEN")
	}
	return out
}
