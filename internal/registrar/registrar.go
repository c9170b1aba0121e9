// Package registrar pushes the bot's slash command descriptors to the
// platform's global command registry.
package registrar

import (
	"context"
	"errors"
	"strings"
	"time"

	"shiftbot/internal/eventbus"
	kit "shiftbot/internal/transport"
	logx "shiftbot/pkg/logx"
)

const (
	EventRegistered     = "commands.registered"
	EventRegisterFailed = "commands.register_failed"
)

var ErrMissingAppID = errors.New("registrar: application id is empty (set CLIENT_ID)")

type Registrar struct {
	target kit.CommandRegistrar
	appID  string
	log    logx.Logger
	bus    eventbus.Bus
}

func New(target kit.CommandRegistrar, appID string, log logx.Logger, bus eventbus.Bus) *Registrar {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registrar{target: target, appID: strings.TrimSpace(appID), log: log, bus: bus}
}

// Register submits cmds in one global upsert. Names repeated in cmds are
// collapsed, the last descriptor winning. Failures are logged and
// returned; callers treat them as non-fatal.
func (r *Registrar) Register(ctx context.Context, cmds []kit.CommandSpec) ([]kit.RegisteredCommand, error) {
	cmds = dedupe(cmds)
	start := time.Now()

	var (
		out []kit.RegisteredCommand
		err error
	)
	switch {
	case r.appID == "":
		err = ErrMissingAppID
	case r.target == nil:
		err = errors.New("registrar: no command registry")
	default:
		out, err = r.target.RegisterCommands(ctx, r.appID, cmds)
	}

	if err != nil {
		r.log.Error("slash command registration failed", logx.Int("count", len(cmds)), logx.Err(err))
		eventbus.Publish(r.bus, EventRegisterFailed, err.Error())
		return nil, err
	}
	r.log.Info("slash commands registered globally", logx.Int("count", len(out)), logx.Duration("dur", time.Since(start)))
	eventbus.Publish(r.bus, EventRegistered, len(out))
	return out, nil
}

func dedupe(cmds []kit.CommandSpec) []kit.CommandSpec {
	idx := make(map[string]int, len(cmds))
	out := make([]kit.CommandSpec, 0, len(cmds))
	for _, c := range cmds {
		if i, ok := idx[c.Name]; ok {
			out[i] = c
			continue
		}
		idx[c.Name] = len(out)
		out = append(out, c)
	}
	return out
}
