package config

import (
	"reflect"
	"strings"

	logx "gchatlog/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// fields for logging. Webhook URLs are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if ChatChanged(oldCfg.Chat, newCfg.Chat) {
		changed = append(changed, "chat")
		attrs = append(attrs,
			logx.Bool("chat.enabled", newCfg.Chat.Enabled),
			logx.Int("chat.webhook_count", len(newCfg.Chat.CleanWebhooks())),
			logx.Bool("chat.thread_key_set", strings.TrimSpace(newCfg.Chat.ThreadKey) != ""),
			logx.String("chat.min_level", newCfg.Chat.MinLevel),
		)
	}

	if !reflect.DeepEqual(oldCfg.Sources, newCfg.Sources) {
		changed = append(changed, "sources")
		attrs = append(attrs, logx.Int("sources.count", len(newCfg.Sources)))
	}

	if !reflect.DeepEqual(oldCfg.Heartbeat, newCfg.Heartbeat) {
		changed = append(changed, "heartbeat")
		if newCfg.Heartbeat != nil {
			attrs = append(attrs, logx.String("heartbeat.schedule", newCfg.Heartbeat.Schedule))
		}
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		// Storage is opened once at startup; a change needs a restart.
		changed = append(changed, "storage")
	}

	if oldCfg.AdminServer() != newCfg.AdminServer() {
		a := newCfg.AdminServer()
		changed = append(changed, "admin")
		attrs = append(attrs,
			logx.Bool("admin.enabled", a.Enabled),
			logx.String("admin.addr", a.Addr),
			logx.Bool("admin.pprof", a.Pprof),
			logx.Bool("admin.token_set", a.Token != ""),
		)
	}

	return changed, attrs
}

// ChatChanged reports whether the chat sink must be rebuilt.
func ChatChanged(a, b ChatConfig) bool {
	return !reflect.DeepEqual(a, b)
}
