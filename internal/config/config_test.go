package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"DISCORD_TOKEN", "CLIENT_ID", "DISCORD_LOG_CHANNEL_ID",
	"TRELLO_BASE_URL", "TRELLO_LIST_ID", "TRELLO_KEY", "TRELLO_TOKEN",
	"LOG_LEVEL", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadFromEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("CLIENT_ID", "app-1")
	t.Setenv("TRELLO_LIST_ID", "list")
	t.Setenv("TRELLO_KEY", "key")
	t.Setenv("TRELLO_TOKEN", "ttok")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "tok" || cfg.Discord.ClientID != "app-1" {
		t.Fatalf("discord = %+v", cfg.Discord)
	}
	if cfg.Trello.ListID != "list" || cfg.Trello.Key != "key" || cfg.Trello.Token != "ttok" {
		t.Fatalf("trello = %+v", cfg.Trello)
	}
	if cfg.Trello.BaseURL != DefaultTrelloBaseURL {
		t.Fatalf("base url = %q", cfg.Trello.BaseURL)
	}
	if cfg.Discord.RegisterTimeout != DefaultRegisterTimeout {
		t.Fatalf("register timeout = %q", cfg.Discord.RegisterTimeout)
	}
	if !cfg.Logging.ConsoleEnabled() {
		t.Fatal("console logging should default to enabled")
	}
	if len(cfg.MissingTrello()) != 0 {
		t.Fatalf("unexpected missing trello: %v", cfg.MissingTrello())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEnvOverridesYAMLFile(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "bot.yaml", `
discord:
  token: file-token
  client_id: file-app
trello:
  list_id: file-list
  key: file-key
  token: file-ttok
  timeout: 5s
logging:
  level: debug
  console: false
`)
	t.Setenv("TRELLO_LIST_ID", "env-list")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Trello.ListID != "env-list" {
		t.Fatalf("list id = %q, want env override", cfg.Trello.ListID)
	}
	if cfg.Discord.Token != "file-token" || cfg.Trello.Timeout != "5s" {
		t.Fatalf("file values lost: %+v %+v", cfg.Discord, cfg.Trello)
	}
	if cfg.Logging.ConsoleEnabled() {
		t.Fatal("console should be disabled by file")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "bot.json", `{"discord":{"token":"x","bogus":1}}`)
	if _, err := Load(p); err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "bot.json", `{"discord":{"token":"x"}}{}`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Discord.Token = "" }, wantErr: "DISCORD_TOKEN"},
		{name: "bad timeout", mutate: func(c *Config) { c.Trello.Timeout = "soon" }, wantErr: "trello.timeout"},
		{name: "negative timeout", mutate: func(c *Config) { c.Discord.RegisterTimeout = "-1s" }, wantErr: ">= 0"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "negative workers", mutate: func(c *Config) { c.Discord.Workers = -1 }, wantErr: "workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Discord: DiscordConfig{Token: "t"}}
			c.applyDefaults()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestMissingTrello(t *testing.T) {
	c := &Config{Trello: TrelloConfig{Key: "k"}}
	got := strings.Join(c.MissingTrello(), ",")
	if got != "TRELLO_LIST_ID,TRELLO_TOKEN" {
		t.Fatalf("MissingTrello = %q", got)
	}
}

func TestSummarizeConfigChangeNeverLogsSecrets(t *testing.T) {
	old := &Config{Discord: DiscordConfig{Token: "old-secret"}, Trello: TrelloConfig{Key: "k1"}}
	nw := &Config{Discord: DiscordConfig{Token: "new-secret"}, Trello: TrelloConfig{Key: "k2"}, Logging: LoggingConfig{Level: "debug"}}

	sections, attrs, restart := SummarizeConfigChange(old, nw)
	if got := strings.Join(sections, ","); got != "discord,trello,logging" {
		t.Fatalf("sections = %q", got)
	}
	if !restart {
		t.Fatal("discord/trello changes should require restart")
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}

	_, _, restart = SummarizeConfigChange(nw, &Config{Discord: nw.Discord, Trello: nw.Trello, Logging: LoggingConfig{Level: "warn"}})
	if restart {
		t.Fatal("logging-only change should not require restart")
	}
}

func TestManagerReloadPublishesValidChanges(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "bot.json", `{"discord":{"token":"a"},"logging":{"level":"info"}}`)
	m := NewConfigManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	if m.reload(context.Background()) {
		t.Fatal("unchanged file should not publish")
	}

	if err := os.WriteFile(p, []byte(`{"discord":{"token":"a"},"logging":{"level":"loud"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if m.reload(context.Background()) {
		t.Fatal("invalid config should be rejected")
	}

	if err := os.WriteFile(p, []byte(`{"discord":{"token":"a"},"logging":{"level":"debug"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if !m.reload(context.Background()) {
		t.Fatal("expected publish")
	}
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("level = %q", cfg.Logging.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("no config published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatal("config not committed")
	}
}

func TestWatchWithoutPathReturns(t *testing.T) {
	m := NewConfigManager("")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "250ms", time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("got %v, %v", d, err)
	}
}
