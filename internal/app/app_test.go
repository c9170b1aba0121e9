package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"shiftbot/internal/config"
	"shiftbot/internal/observability/tracing"
	"shiftbot/internal/scheduling"
	kit "shiftbot/internal/transport"
)

type fakePlatform struct {
	mu         sync.Mutex
	startErr   error
	started    bool
	stopped    bool
	registered [][]kit.CommandSpec
	replies    chan string
}

func newFakePlatform() *fakePlatform { return &fakePlatform{replies: make(chan string, 8)} }

func (f *fakePlatform) Start(ctx context.Context, out chan<- kit.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakePlatform) Stop(ctx context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

// Reply fails after Stop or on a cancelled ctx, like a closed gateway session.
func (f *fakePlatform) Reply(ctx context.Context, in *kit.Interaction, text string, opt *kit.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	stopped := f.stopped
	f.mu.Unlock()
	if stopped {
		return errors.New("session closed")
	}
	f.replies <- text
	return nil
}

func (f *fakePlatform) SendText(ctx context.Context, to kit.ChannelTarget, text string, opt *kit.SendOptions) error {
	return nil
}

func (f *fakePlatform) RegisterCommands(ctx context.Context, appID string, cmds []kit.CommandSpec) ([]kit.RegisteredCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, cmds)
	out := make([]kit.RegisteredCommand, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, kit.RegisteredCommand{ID: "id-" + c.Name, Name: c.Name})
	}
	return out, nil
}

func (f *fakePlatform) registrations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registered)
}

func setEnv(t *testing.T, trelloURL string) {
	t.Helper()
	for k, v := range map[string]string{
		"DISCORD_TOKEN":               "tok",
		"CLIENT_ID":                   "app-1",
		"DISCORD_LOG_CHANNEL_ID":      "",
		"TRELLO_BASE_URL":             trelloURL,
		"TRELLO_LIST_ID":              "list",
		"TRELLO_KEY":                  "key",
		"TRELLO_TOKEN":                "ttok",
		"LOG_LEVEL":                   "error",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "",
		"OTEL_SERVICE_NAME":           "",
	} {
		t.Setenv(k, v)
	}
}

func TestAppEndToEndSchedule(t *testing.T) {
	trelloSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c1","shortUrl":"https://trello.com/c/abc123"}`))
	}))
	defer trelloSrv.Close()
	setEnv(t, trelloSrv.URL)

	cfgm := config.NewConfigManager("")
	cfg, err := cfgm.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fp := newFakePlatform()
	a, err := newApp(cfgm, cfg, fp)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fp.registrations() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fp.registrations() != 1 || len(fp.registered[0]) != 4 {
		t.Fatalf("registrations = %d", fp.registrations())
	}

	a.updates <- kit.Update{Kind: kit.UpdateCommand, Interaction: &kit.Interaction{
		Command: scheduling.CommandSchedule,
		Options: map[string]string{"type": "Shift", "time": "5pm", "host": "alice"},
	}}
	select {
	case got := <-fp.replies:
		if !strings.Contains(got, "https://trello.com/c/abc123") {
			t.Fatalf("reply = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !fp.stopped {
		t.Fatal("adapter not stopped")
	}
}

func startTestApp(t *testing.T, trelloURL string, fp *fakePlatform) *App {
	t.Helper()
	setEnv(t, trelloURL)
	cfgm := config.NewConfigManager("")
	cfg, err := cfgm.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a, err := newApp(cfgm, cfg, fp)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return a
}

func TestStopDuringScheduleStillReplies(t *testing.T) {
	hit := make(chan struct{}, 1)
	release := make(chan struct{})
	var releaseOnce sync.Once
	trelloSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit <- struct{}{}
		<-release
		_, _ = w.Write([]byte(`{"id":"c1","shortUrl":"https://trello.com/c/abc123"}`))
	}))
	defer trelloSrv.Close()
	defer releaseOnce.Do(func() { close(release) })

	fp := newFakePlatform()
	a := startTestApp(t, trelloSrv.URL, fp)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	a.updates <- kit.Update{Kind: kit.UpdateCommand, Interaction: &kit.Interaction{
		Command: scheduling.CommandSchedule,
		Options: map[string]string{"type": "Shift", "time": "5pm", "host": "alice"},
	}}
	select {
	case <-hit:
	case <-time.After(2 * time.Second):
		t.Fatal("trello not called")
	}

	stopErr := make(chan error, 1)
	go func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		stopErr <- a.Stop(stopCtx, StopSignal)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for a.cmdm.Supervisor() != nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	releaseOnce.Do(func() { close(release) })

	select {
	case got := <-fp.replies:
		if !strings.Contains(got, "https://trello.com/c/abc123") {
			t.Fatalf("reply = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight /schedule got no reply")
	}
	if err := <-stopErr; err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n := len(fp.replies); n != 0 {
		t.Fatalf("extra replies = %d", n)
	}
}

func TestStartFailureShutsDownTracing(t *testing.T) {
	var shutdowns int
	orig := setupTracing
	setupTracing = func(ctx context.Context, cfg tracing.Config) (func(context.Context) error, error) {
		return func(context.Context) error { shutdowns++; return nil }, nil
	}
	defer func() { setupTracing = orig }()

	fp := newFakePlatform()
	fp.startErr = errors.New("login failed")
	a := startTestApp(t, "http://127.0.0.1:0", fp)
	if err := a.Start(context.Background()); !errors.Is(err, fp.startErr) {
		t.Fatalf("Start err = %v", err)
	}
	if shutdowns != 1 {
		t.Fatalf("tracing shutdowns = %d, want 1", shutdowns)
	}
}

func TestMapPprofRejectsBadDuration(t *testing.T) {
	cfg := &config.Config{Pprof: config.PprofConfig{ReadTimeout: "soon"}}
	if _, err := mapPprof(cfg); err == nil {
		t.Fatal("expected error")
	}
	cfg.Pprof = config.PprofConfig{Enabled: true, ReadTimeout: "2s"}
	p, err := mapPprof(cfg)
	if err != nil || !p.Enabled || p.ReadTimeout != 2*time.Second {
		t.Fatalf("got %+v, %v", p, err)
	}
}

func TestMapLoggingDefaultsConsoleOn(t *testing.T) {
	cfg := &config.Config{Logging: config.LoggingConfig{Level: "debug"}}
	lc := mapLogging(cfg)
	if !lc.Console || lc.Level != "debug" {
		t.Fatalf("logging = %+v", lc)
	}
}

func TestRegisterTimeoutDefault(t *testing.T) {
	if d := registerTimeout(&config.Config{}); d != 15*time.Second {
		t.Fatalf("timeout = %v", d)
	}
	if d := registerTimeout(&config.Config{Discord: config.DiscordConfig{RegisterTimeout: "3s"}}); d != 3*time.Second {
		t.Fatalf("timeout = %v", d)
	}
}
