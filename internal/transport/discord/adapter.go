// Package discord adapts a discordgo gateway session to the transport
// Adapter and CommandRegistrar ports.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	rtsup "shiftbot/internal/runtime/supervisor"
	kit "shiftbot/internal/transport"
	logx "shiftbot/pkg/logx"
)

type Config struct {
	Token   string
	Intents discordgo.Intent
}

// session is the part of *discordgo.Session the adapter uses.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

type Adapter struct {
	log  logx.Logger
	sess session

	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
	removes []func()

	dropped atomic.Uint64
}

var _ kit.Adapter = (*Adapter)(nil)
var _ kit.CommandRegistrar = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = cfg.Intents
	if s.Identify.Intents == 0 {
		s.Identify.Intents = discordgo.IntentsGuilds
	}
	return newAdapter(s, log), nil
}

func newAdapter(s session, log logx.Logger) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{log: log, sess: s}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	return a
}

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r == nil || r.User == nil {
		return
	}
	a.log.Info("logged in", logx.String("user", r.User.Username), logx.String("user_id", r.User.ID))
}

func (a *Adapter) onInteraction(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic == nil || ic.Interaction == nil {
		return
	}
	a.sendUpdate(toUpdate(ic.Interaction))
}

// toUpdate converts an interaction. Only chat-input application commands
// become UpdateCommand; everything else is UpdateOther.
func toUpdate(i *discordgo.Interaction) kit.Update {
	if i.Type != discordgo.InteractionApplicationCommand {
		return kit.Update{Kind: kit.UpdateOther}
	}
	data := i.ApplicationCommandData()
	if data.CommandType != discordgo.ChatApplicationCommand {
		return kit.Update{Kind: kit.UpdateOther}
	}

	in := &kit.Interaction{
		ID:        i.ID,
		Token:     i.Token,
		AppID:     i.AppID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Command:   data.Name,
		Options:   make(map[string]string, len(data.Options)),
	}
	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user != nil {
		in.UserID = user.ID
		in.Username = user.Username
	}
	for _, o := range data.Options {
		if o == nil || o.Type != discordgo.ApplicationCommandOptionString {
			continue
		}
		in.Options[o.Name] = o.StringValue()
	}
	return kit.Update{Kind: kit.UpdateCommand, Interaction: in}
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.dropped.Add(1)
	}
}

// Start opens the gateway session. A login failure is returned to the caller.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.out.Store(out)
	a.removes = append(a.removes[:0],
		a.sess.AddHandler(a.onReady),
		a.sess.AddHandler(a.onInteraction),
	)
	if err := a.sess.Open(); err != nil {
		a.clearHandlersLocked()
		var nilOut chan<- kit.Update
		a.out.Store(nilOut)
		a.runMu.Unlock()
		return fmt.Errorf("discord: open session: %w", err)
	}
	a.running = true
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "discord.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := a.dropped.Swap(0); n > 0 {
				a.log.Warn("incoming interactions dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	a.log.Info("gateway session opened")
	return nil
}

func (a *Adapter) clearHandlersLocked() {
	for _, rm := range a.removes {
		if rm != nil {
			rm()
		}
	}
	a.removes = nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.clearHandlersLocked()
	a.runMu.Unlock()

	if !wasRunning {
		a.log.Debug("discord stop called but not running")
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", a.dropped.Load()))

	if sup != nil {
		sup.Cancel()
	}
	closeErr := a.sess.Close()

	if sup != nil {
		wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			a.log.Debug("discord stopped with supervisor error", logx.Err(err))
		}
	}
	if closeErr != nil {
		return fmt.Errorf("discord: close session: %w", closeErr)
	}
	return nil
}

// Discord rejects message content above 2000 characters.
const messageLimit = 2000

func (a *Adapter) Reply(ctx context.Context, in *kit.Interaction, text string, opt *kit.SendOptions) error {
	if in == nil {
		return errors.New("discord: nil interaction")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data := &discordgo.InteractionResponseData{
		Content:         truncate(text, messageLimit),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
		Flags:           messageFlags(opt),
	}
	return a.sess.InteractionRespond(
		&discordgo.Interaction{ID: in.ID, AppID: in.AppID, Token: in.Token},
		&discordgo.InteractionResponse{Type: discordgo.InteractionResponseChannelMessageWithSource, Data: data},
		discordgo.WithContext(ctx),
	)
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChannelTarget, text string, opt *kit.SendOptions) error {
	if strings.TrimSpace(to.ChannelID) == "" {
		return errors.New("discord: empty channel id")
	}
	flags := messageFlags(opt) &^ discordgo.MessageFlagsEphemeral
	for _, chunk := range splitText(text, messageLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := &discordgo.MessageSend{
			Content:         chunk,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
			Flags:           flags,
		}
		if _, err := a.sess.ChannelMessageSendComplex(to.ChannelID, msg, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

func messageFlags(opt *kit.SendOptions) discordgo.MessageFlags {
	var f discordgo.MessageFlags
	if opt == nil {
		return f
	}
	if opt.SuppressEmbeds {
		f |= discordgo.MessageFlagsSuppressEmbeds
	}
	if opt.Ephemeral {
		f |= discordgo.MessageFlagsEphemeral
	}
	return f
}

// RegisterCommands overwrites the global command set. Discord upserts by
// name and keeps command IDs, so every process start can send the full set.
func (a *Adapter) RegisterCommands(ctx context.Context, appID string, cmds []kit.CommandSpec) ([]kit.RegisteredCommand, error) {
	created, err := a.sess.ApplicationCommandBulkOverwrite(appID, "", toApplicationCommands(cmds), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: overwrite global commands: %w", err)
	}
	out := make([]kit.RegisteredCommand, 0, len(created))
	for _, c := range created {
		if c == nil {
			continue
		}
		out = append(out, kit.RegisteredCommand{ID: c.ID, Name: c.Name})
	}
	return out, nil
}

func toApplicationCommands(cmds []kit.CommandSpec) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(cmds))
	for _, c := range cmds {
		ac := &discordgo.ApplicationCommand{
			Name:        c.Name,
			Description: c.Description,
			Type:        discordgo.ChatApplicationCommand,
		}
		for _, o := range c.Options {
			opt := &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        o.Name,
				Description: o.Description,
				Required:    o.Required,
			}
			for _, ch := range o.Choices {
				opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: ch.Name, Value: ch.Value})
			}
			ac.Options = append(ac.Options, opt)
		}
		out = append(out, ac)
	}
	return out
}
