// Package pprof runs an optional diagnostics HTTP server: net/http/pprof
// plus a JSON dump of the process supervisors.
package pprof

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	rtsup "shiftbot/internal/runtime/supervisor"
	logx "shiftbot/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

// Config controls the diagnostics server. A non-loopback Addr requires a
// Token unless AllowInsecure is set.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	ReadTimeout   time.Duration
	IdleTimeout   time.Duration
}

// SnapshotFunc reports named supervisor snapshots for /debug/supervisors.
type SnapshotFunc func() map[string]rtsup.Snapshot

type Service struct {
	log       logx.Logger
	snapshots SnapshotFunc

	mu  sync.Mutex
	cfg Config
	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(log logx.Logger, snapshots SnapshotFunc) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log.With(logx.String("comp", "pprof")), snapshots: snapshots}
}

// Addr is the bound address, empty when the server is not running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Reconfigure starts, stops or restarts the server to match cfg. It is
// called at startup and on every config reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
		return nil
	case running && prev == cfg:
		return nil
	case running:
		s.Stop(ctx)
	}
	return s.start(ctx, cfg)
}

func (s *Service) start(ctx context.Context, cfg Config) error {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		if !cfg.AllowInsecure {
			s.log.Error("pprof refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
			return errors.New("pprof: insecure bind refused")
		}
		s.log.Warn("pprof running without token on non-loopback addr", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("pprof listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:           s.handler(cfg.Token),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	sup := rtsup.NewSupervisor(context.WithoutCancel(ctx),
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)

	s.mu.Lock()
	s.ln, s.srv, s.sup = ln, srv, sup
	s.mu.Unlock()

	sup.Go("http.serve", func(c context.Context) error {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	s.log.Info("pprof started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.ln, s.srv, s.sup = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		_ = srv.Close()
	}
	if sup != nil {
		sup.Cancel()
		_ = sup.Wait(sctx)
	}
	s.log.Info("pprof stopped")
}

func (s *Service) handler(token string) http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(token, h) }

	mux.HandleFunc("/debug/pprof/", auth(hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", auth(hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", auth(hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", auth(hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", auth(hpprof.Trace))
	mux.HandleFunc("/debug/supervisors", auth(func(w http.ResponseWriter, r *http.Request) {
		out := map[string]rtsup.Snapshot{}
		if s.snapshots != nil {
			out = s.snapshots()
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	}))
	return mux
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
			}
		}
		if got != tok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
