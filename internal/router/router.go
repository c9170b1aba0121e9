package router

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "shiftbot/internal/runtime/supervisor"
	kit "shiftbot/internal/transport"
	logx "shiftbot/pkg/logx"
)

const (
	ReplyFallback = "❌ Something went wrong."
	ReplyUnknown  = "❓ Unknown command."
	ReplyBusy     = "⏳ Busy, try again."
)

var ErrAlreadyReplied = errors.New("interaction already replied")

// Command binds a slash command descriptor to its handler.
type Command struct {
	Spec   kit.CommandSpec
	Handle HandlerFunc
}

// Request is one dispatched invocation. It allows exactly one reply.
type Request struct {
	Update      kit.Update
	Interaction *kit.Interaction
	Command     string
	ReqID       string
	Logger      logx.Logger

	adapter kit.Adapter
	replied atomic.Bool
}

// NewRequest builds a Request outside the dispatcher (tests, tools).
func NewRequest(adapter kit.Adapter, in *kit.Interaction, log logx.Logger) *Request {
	return &Request{
		Update:      kit.Update{Kind: kit.UpdateCommand, Interaction: in},
		Interaction: in,
		Command:     in.Command,
		ReqID:       newReqID(),
		Logger:      log,
		adapter:     adapter,
	}
}

// Options returns a copy of the supplied string options.
func (r *Request) Options() map[string]string {
	out := make(map[string]string, len(r.Interaction.Options))
	for k, v := range r.Interaction.Options {
		out[k] = v
	}
	return out
}

// Reply sends the interaction response. Only the first call reaches the
// adapter; later calls return ErrAlreadyReplied.
func (r *Request) Reply(ctx context.Context, text string) error {
	if !r.replied.CompareAndSwap(false, true) {
		return ErrAlreadyReplied
	}
	return r.adapter.Reply(ctx, r.Interaction, text, nil)
}

func (r *Request) Replied() bool { return r.replied.Load() }

// CommandManager dispatches interactions to registered commands on a
// bounded worker pool.
type CommandManager struct {
	mu    sync.RWMutex
	cmds  map[string]Command
	specs []kit.CommandSpec

	log     logx.Logger
	adapter kit.Adapter
	workers int

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs     chan job
	inflight sync.WaitGroup
	// drainTimeout bounds how long shutdown waits for queued and running
	// jobs before answering the rest with ReplyBusy.
	drainTimeout time.Duration
}

type job struct {
	req *Request
	run func()
}

// NewCommandManager creates a dispatcher. workers <= 0 means max(2, NumCPU).
func NewCommandManager(log logx.Logger, adapter kit.Adapter, workers int) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if workers <= 0 {
		workers = max(2, runtime.NumCPU())
	}
	return &CommandManager{
		cmds:         map[string]Command{},
		log:          log,
		adapter:      adapter,
		workers:      workers,
		jobs:         make(chan job, 256),
		drainTimeout: 5 * time.Second,
	}
}

// Supervisor returns the worker pool supervisor (nil when not running).
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// SetRegistry replaces the command set. A later command with the same name
// replaces an earlier one.
func (m *CommandManager) SetRegistry(cmds []Command) {
	byName := make(map[string]Command, len(cmds))
	order := make([]string, 0, len(cmds))
	for _, c := range cmds {
		name := strings.TrimSpace(c.Spec.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		byName[name] = c
	}
	specs := make([]kit.CommandSpec, 0, len(order))
	for _, name := range order {
		specs = append(specs, byName[name].Spec)
	}

	m.mu.Lock()
	m.cmds = byName
	m.specs = specs
	m.mu.Unlock()
}

// Specs returns the registered descriptors in registration order.
func (m *CommandManager) Specs() []kit.CommandSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]kit.CommandSpec(nil), m.specs...)
}

func (m *CommandManager) tryEnqueue(j job) bool {
	m.inflight.Add(1)
	select {
	case m.jobs <- j:
		return true
	default:
		m.inflight.Done()
		return false
	}
}

// DispatchLoop consumes updates until ctx ends or updates is closed. On
// return, accepted jobs still run to completion (bounded by drainTimeout)
// and every accepted interaction is answered.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(context.WithoutCancel(ctx),
		rtsup.WithLogger(m.log.With(logx.String("comp", "router.workers"))),
		rtsup.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < m.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case j := <-m.jobs:
					m.runJob(idx, j)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		m.setSupervisor(sup, false)
		m.drain()
		sup.Cancel()
		m.rejectQueued()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) runJob(worker int, j job) {
	defer m.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	j.run()
}

// drain waits for queued and running jobs, giving up after drainTimeout.
func (m *CommandManager) drain() {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	t := time.NewTimer(m.drainTimeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		m.log.Warn("command drain timed out", logx.Int("queued", len(m.jobs)), logx.Duration("timeout", m.drainTimeout))
	}
}

// rejectQueued answers jobs no worker picked up with ReplyBusy.
func (m *CommandManager) rejectQueued() {
	for {
		select {
		case j := <-m.jobs:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := j.req.Reply(ctx, ReplyBusy); err != nil {
				j.req.Logger.Warn("busy reply failed", logx.Err(err))
			}
			cancel()
			m.inflight.Done()
		default:
			return
		}
	}
}

// routeUpdate ignores everything that is not a chat-input command. Replies
// and handlers run detached from ctx: stopping the dispatcher never
// cancels an accepted interaction.
func (m *CommandManager) routeUpdate(ctx context.Context, up kit.Update) {
	ctx = context.WithoutCancel(ctx)
	if up.Kind != kit.UpdateCommand || up.Interaction == nil {
		return
	}
	in := up.Interaction

	m.mu.RLock()
	cmd, ok := m.cmds[in.Command]
	m.mu.RUnlock()

	req := &Request{
		Update:      up,
		Interaction: in,
		Command:     in.Command,
		ReqID:       newReqID(),
		adapter:     m.adapter,
	}
	req.Logger = m.log.With(
		logx.String("rid", req.ReqID),
		logx.String("guild_id", in.GuildID),
		logx.String("channel_id", in.ChannelID),
		logx.String("user_id", in.UserID),
		logx.String("cmd", in.Command),
	)

	if !ok {
		req.Logger.Warn("unknown command")
		_ = req.Reply(ctx, ReplyUnknown)
		return
	}

	final := m.wrap(cmd)
	if !m.tryEnqueue(job{req: req, run: func() { _ = final(ctx, req) }}) {
		req.Logger.Warn("command queue full")
		_ = req.Reply(ctx, ReplyBusy)
	}
}

func (m *CommandManager) wrap(cmd Command) HandlerFunc {
	return Chain(
		cmd.Handle,
		MWSingleReply(ReplyFallback),
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTrace(),
	)
}
