package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "shiftbot/internal/transport"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Discord DiscordConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// DiscordConfig mirrors log lines at or above MinLevel into a Discord
// channel. The channel itself is set with SetDiscordTarget.
type DiscordConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// ChannelSender is the subset of the transport adapter the Discord sink needs.
type ChannelSender interface {
	SendText(ctx context.Context, to kit.ChannelTarget, text string, opt *kit.SendOptions) error
}

const discordLogLimit = 1900

// Service owns the root zerolog logger and its sinks.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // zerolog.Logger

	file *os.File

	sender   ChannelSender
	dcQueue  chan discordItem
	dcOnce   sync.Once
	dcCancel context.CancelFunc
	dcWG     sync.WaitGroup

	// guarded by mu
	channelID string
	limiter   *rate.Limiter
	minLevel  zerolog.Level
}

type discordItem struct {
	to  kit.ChannelTarget
	msg string
}

// New creates the logging service, applies cfg and returns the root Logger.
// sender may be nil, in which case the Discord sink is inert.
func New(cfg Config, sender ChannelSender) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	s := &Service{
		cfg:     cfg,
		sender:  sender,
		dcQueue: make(chan discordItem, 256),
	}
	boot := zerolog.New(newConsoleWriter(Stdout())).Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
	s.root.Store(boot)
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	zl, ok := s.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetDiscordTarget sets the channel receiving mirrored log lines.
// An empty id disables mirroring without touching the rest of the config.
func (s *Service) SetDiscordTarget(channelID string) {
	s.mu.Lock()
	s.channelID = strings.TrimSpace(channelID)
	s.mu.Unlock()
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	cancel := s.dcCancel
	s.dcCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.dcWG.Wait()
	}
	if f != nil {
		_ = f.Close()
	}
	return nil
}

// Apply swaps outputs and levels at runtime. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.minLevel = ParseLevel(cfg.Discord.MinLevel, zerolog.WarnLevel)
	rps := cfg.Discord.RatePerSec
	if rps < 1 {
		rps = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./shiftbot.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(Stderr(), "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Discord.Enabled {
		s.dcOnce.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			s.dcCancel = cancel
			s.dcWG.Add(1)
			go func() {
				defer s.dcWG.Done()
				s.discordWorker(ctx)
			}()
		})
		writers = append(writers, &discordWriter{svc: s})
		if s.channelID == "" {
			fmt.Fprintln(Stderr(), "logx: discord logging enabled but discord.log_channel_id is not set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
	s.root.Store(zl)
}

func (s *Service) discordWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.dcQueue:
			if s.sender == nil {
				continue
			}
			_ = s.sender.SendText(ctx, it.to, it.msg, &kit.SendOptions{SuppressEmbeds: true})
		}
	}
}

// discordWriter is a zerolog.LevelWriter that never blocks the caller.
type discordWriter struct{ svc *Service }

func (w *discordWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *discordWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	if s == nil {
		return len(p), nil
	}
	s.mu.Lock()
	channelID := s.channelID
	lim := s.limiter
	min := s.minLevel
	s.mu.Unlock()

	if channelID == "" || s.sender == nil || lim == nil || level < min {
		return len(p), nil
	}
	if !lim.Allow() {
		return len(p), nil
	}
	msg := formatDiscordLine(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case s.dcQueue <- discordItem{to: kit.ChannelTarget{ChannelID: channelID}, msg: msg}:
	default:
	}
	return len(p), nil
}

// formatDiscordLine renders one zerolog JSON line as a compact chat message.
func formatDiscordLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(p))), &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), discordLogLimit)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("**[")
		b.WriteString(strings.ToUpper(lvl))
		b.WriteString("]** ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(fmt.Sprint(m[k]), 400))
	}
	return truncate(b.String(), discordLogLimit)
}

// truncate cuts s to at most maxN bytes without splitting a rune.
func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	suffix := "..."
	if maxN < 10 {
		suffix = ""
	}
	cut := maxN - len(suffix)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + suffix
}
