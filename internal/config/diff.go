package config

import (
	"strings"

	logx "shiftbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, safe log fields
// (never tokens or keys), and whether a restart is needed for the change
// to take effect.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, bool) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)
	restart := false

	od, nd := oldCfg.Discord, newCfg.Discord
	if od.Token != nd.Token || od.ClientID != nd.ClientID || od.Workers != nd.Workers ||
		strings.TrimSpace(od.RegisterTimeout) != strings.TrimSpace(nd.RegisterTimeout) {
		changed = append(changed, "discord")
		restart = true
		attrs = append(attrs,
			logx.Bool("discord.token_changed", od.Token != nd.Token),
			logx.String("discord.client_id", nd.ClientID),
		)
	}
	if od.LogChannelID != nd.LogChannelID {
		changed = append(changed, "discord.log_channel")
		attrs = append(attrs, logx.Bool("discord.log_channel_set", nd.LogChannelID != ""))
	}

	ot, nt := oldCfg.Trello, newCfg.Trello
	if ot != nt {
		changed = append(changed, "trello")
		restart = true
		attrs = append(attrs,
			logx.String("trello.base_url", nt.BaseURL),
			logx.Bool("trello.credentials_changed", ot.Key != nt.Key || ot.Token != nt.Token || ot.ListID != nt.ListID),
		)
	}

	ol, nl := oldCfg.Logging, newCfg.Logging
	if ol.Level != nl.Level || ol.ConsoleEnabled() != nl.ConsoleEnabled() || ol.File != nl.File || ol.Discord != nl.Discord {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
			logx.Bool("logging.discord_enabled", nl.Discord.Enabled),
		)
	}

	op, np := oldCfg.Pprof, newCfg.Pprof
	if op.Enabled != np.Enabled || op.Addr != np.Addr || op.AllowInsecure != np.AllowInsecure ||
		op.ReadTimeout != np.ReadTimeout || op.IdleTimeout != np.IdleTimeout || (op.Token != "") != (np.Token != "") {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", np.Enabled),
			logx.String("pprof.addr", np.Addr),
			logx.Bool("pprof.token_set", np.Token != ""),
		)
	}

	if oldCfg.Tracing != newCfg.Tracing {
		changed = append(changed, "tracing")
		restart = true
	}
	return changed, attrs, restart
}
