package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	logx "shiftbot/pkg/logx"
)

// Supervisor runs named goroutines tied to one context.
// - panic recovery
// - optional cancel-on-first-error
// - restart loops with jittered backoff
// - bounded waiting on shutdown
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	errOnce  sync.Once
	firstErr atomic.Value // error
	doneOnce sync.Once
	doneCh   chan struct{}
	wg       sync.WaitGroup

	started atomic.Uint64
	active  atomic.Int64

	mu    sync.Mutex
	stats map[string]*TaskStats
}

type SupervisorOption func(*Supervisor)

func WithLogger(log logx.Logger) SupervisorOption {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError makes the first non-nil error cancel the supervisor context.
func WithCancelOnError(enabled bool) SupervisorOption {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

// TaskStats aggregates runs of goroutines sharing one name.
type TaskStats struct {
	Name      string    `json:"name"`
	Active    int64     `json:"active"`
	Started   uint64    `json:"started"`
	Restarts  uint64    `json:"restarts"`
	Panics    uint64    `json:"panics"`
	LastStart time.Time `json:"last_start"`
	LastStop  time.Time `json:"last_stop,omitempty"`
	LastErr   string    `json:"last_err,omitempty"`
}

type Snapshot struct {
	Active     int64       `json:"active"`
	Started    uint64      `json:"started"`
	FirstError string      `json:"first_error,omitempty"`
	Tasks      []TaskStats `json:"tasks"`
}

func NewSupervisor(parent context.Context, opts ...SupervisorOption) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
		stats:  map[string]*TaskStats{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

func (s *Supervisor) Err() error {
	err, _ := s.firstErr.Load().(error)
	return err
}

// Snapshot is for diagnostics output, not synchronization.
func (s *Supervisor) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	snap := Snapshot{Active: s.active.Load(), Started: s.started.Load()}
	if err := s.Err(); err != nil {
		snap.FirstError = err.Error()
	}
	s.mu.Lock()
	for _, st := range s.stats {
		snap.Tasks = append(snap.Tasks, *st)
	}
	s.mu.Unlock()
	sort.Slice(snap.Tasks, func(i, j int) bool {
		if snap.Tasks[i].Active != snap.Tasks[j].Active {
			return snap.Tasks[i].Active > snap.Tasks[j].Active
		}
		return snap.Tasks[i].Name < snap.Tasks[j].Name
	})
	return snap
}

func (s *Supervisor) stat(name string) *TaskStats {
	st := s.stats[name]
	if st == nil {
		st = &TaskStats{Name: name}
		s.stats[name] = st
	}
	return st
}

func (s *Supervisor) noteStart(name string, restart bool) time.Time {
	now := time.Now()
	s.mu.Lock()
	st := s.stat(name)
	st.Started++
	st.Active++
	st.LastStart = now
	if restart {
		st.Restarts++
	}
	s.mu.Unlock()
	return now
}

func (s *Supervisor) noteStop(name string, err error, panicked bool) {
	s.mu.Lock()
	st := s.stat(name)
	if st.Active > 0 {
		st.Active--
	}
	st.LastStop = time.Now()
	if err != nil {
		st.LastErr = err.Error()
	}
	if panicked {
		st.Panics++
	}
	s.mu.Unlock()
}

// Go runs fn in a named goroutine. A returned error (other than
// context.Canceled) or a panic is recorded as the supervisor error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.started.Add(1)
	s.active.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)

		s.noteStart(name, false)
		err, panicked := s.run(name, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%s: %w", name, err)
			s.noteStop(name, err, panicked)
			s.fail(err)
			return
		}
		s.noteStop(name, nil, false)
	}()
}

func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			if !s.log.IsZero() {
				s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
			err = fmt.Errorf("panic: %v", r)
			panicked = true
		}
	}()
	if !s.log.IsZero() {
		s.log.Debug("goroutine started", logx.String("name", name))
		defer s.log.Debug("goroutine stopped", logx.String("name", name))
	}
	return fn(s.ctx), false
}

type RestartOption func(*restartCfg)

type restartCfg struct {
	minBackoff      time.Duration
	maxBackoff      time.Duration
	maxRestarts     int
	stopOnCleanExit bool
	publishFirstErr bool
}

func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartCfg) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMaxRestarts gives up after n restarts (<= 0 means unlimited).
func WithMaxRestarts(n int) RestartOption { return func(c *restartCfg) { c.maxRestarts = n } }

// WithPublishFirstError records the first failure as the supervisor error
// while still restarting.
func WithPublishFirstError(enabled bool) RestartOption {
	return func(c *restartCfg) { c.publishFirstErr = enabled }
}

// WithStopOnCleanExit stops (instead of restarting) when fn returns nil. Default true.
func WithStopOnCleanExit(enabled bool) RestartOption {
	return func(c *restartCfg) { c.stopOnCleanExit = enabled }
}

// GoRestart runs fn and restarts it on error or panic until the context ends.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartCfg{minBackoff: 250 * time.Millisecond, maxBackoff: 30 * time.Second, stopOnCleanExit: true}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxBackoff < cfg.minBackoff {
		cfg.maxBackoff = cfg.minBackoff
	}

	s.Go0(name+".restart", func(ctx context.Context) {
		backoff := cfg.minBackoff
		for restarts := 0; ; restarts++ {
			if ctx.Err() != nil {
				return
			}
			startedAt := s.noteStart(name, restarts > 0)
			err, panicked := s.run(name, fn)

			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.noteStop(name, nil, panicked)
				return
			}
			if err == nil {
				if cfg.stopOnCleanExit {
					s.noteStop(name, nil, false)
					return
				}
				err = errors.New("exited")
			}
			err = fmt.Errorf("%s: %w", name, err)
			s.noteStop(name, err, panicked)
			if cfg.publishFirstErr {
				s.setErr(err)
			}
			if cfg.maxRestarts > 0 && restarts+1 > cfg.maxRestarts {
				if !s.log.IsZero() {
					s.log.Error("goroutine gave up after restarts", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				}
				return
			}

			// A long healthy run resets the backoff.
			if time.Since(startedAt) >= 30*time.Second {
				backoff = cfg.minBackoff
			}
			wait := backoff
			if j := int64(wait) / 5; j > 0 {
				wait += time.Duration(time.Now().UnixNano() % (j + 1))
			}
			if !s.log.IsZero() {
				s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			backoff *= 2
			if backoff > cfg.maxBackoff {
				backoff = cfg.maxBackoff
			}
		}
	})
}

func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}

func (s *Supervisor) fail(err error) {
	s.setErr(err)
	if s.cancelOnErr {
		s.cancel()
	}
}

func (s *Supervisor) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() { s.firstErr.Store(err) })
}
