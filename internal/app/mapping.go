package app

import (
	"context"
	"time"

	"shiftbot/internal/config"
	"shiftbot/internal/observability/pprof"
	"shiftbot/internal/scheduling"
	"shiftbot/internal/trello"
	logx "shiftbot/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.ConsoleEnabled(),
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Discord: logx.DiscordConfig{
			Enabled:    l.Discord.Enabled,
			MinLevel:   l.Discord.MinLevel,
			RatePerSec: l.Discord.RatePerSec,
		},
	}
}

func mapPprof(cfg *config.Config) (pprof.Config, error) {
	p := cfg.Pprof
	read, err := config.ParseDurationField("pprof.read_timeout", p.ReadTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	idle, err := config.ParseDurationField("pprof.idle_timeout", p.IdleTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:       p.Enabled,
		Addr:          p.Addr,
		Token:         p.Token,
		AllowInsecure: p.AllowInsecure,
		ReadTimeout:   read,
		IdleTimeout:   idle,
	}, nil
}

func mapTrello(cfg *config.Config) (trello.Config, error) {
	t := cfg.Trello
	timeout, err := config.ParseDurationField("trello.timeout", t.Timeout)
	if err != nil {
		return trello.Config{}, err
	}
	return trello.Config{
		BaseURL: t.BaseURL,
		ListID:  t.ListID,
		Key:     t.Key,
		Token:   t.Token,
		Timeout: timeout,
	}, nil
}

func registerTimeout(cfg *config.Config) time.Duration {
	d, err := config.ParseDurationOrDefault("discord.register_timeout", cfg.Discord.RegisterTimeout, 15*time.Second)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// trelloCards adapts the Trello client to the scheduling card port.
type trelloCards struct{ client *trello.Client }

func (t trelloCards) CreateCard(ctx context.Context, req scheduling.CardRequest) (scheduling.Card, error) {
	card, err := t.client.CreateCard(ctx, req.Title, req.Description)
	if err != nil {
		return scheduling.Card{}, err
	}
	return scheduling.Card{ID: card.ID, ShortURL: card.ShortURL}, nil
}
