package config

import (
	"strings"

	"gchatlog/internal/observability/admin"
	logx "gchatlog/pkg/logx"
)

// DefaultOutputTemplate is used when chat.output_template is omitted.
const DefaultOutputTemplate = "[{Level:u3}] {Message}{NewLine}{Exception}"

// DefaultTimeout bounds one webhook request when chat.timeout is omitted.
const DefaultTimeout = "30s"

type Config struct {
	Logging   LoggingConfig    `json:"logging"`
	Chat      ChatConfig       `json:"chat"`
	Sources   []SourceConfig   `json:"sources,omitempty"`
	Heartbeat *HeartbeatConfig `json:"heartbeat,omitempty"`
	Storage   *StorageConfig   `json:"storage,omitempty"`
	Admin     *AdminConfig     `json:"admin,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ChatConfig describes the Google Chat destination.
//
// Webhook URLs embed credentials (key, token). They are never logged.
type ChatConfig struct {
	Enabled        bool     `json:"enabled"`
	OutputTemplate string   `json:"output_template,omitempty"`
	Webhooks       []string `json:"webhooks"`
	ThreadKey      string   `json:"thread_key,omitempty"`
	MinLevel       string   `json:"min_level,omitempty"`
	// Locale is a BCP 47 tag (e.g. "de-DE"). Empty means the host locale.
	Locale string `json:"locale,omitempty"`
	// RatePerSec caps how many log lines per second the daemon's own logger
	// may hand to chat. 0 disables the cap.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// Timeout is a Go duration string applied to each webhook request.
	Timeout string      `json:"timeout,omitempty"`
	Batch   BatchConfig `json:"batch"`
}

// BatchConfig maps onto batching.Options. Zero values take the defaults
// (size 1, period 1s, queue 1000).
type BatchConfig struct {
	SizeLimit  int    `json:"size_limit,omitempty"`
	Period     string `json:"period,omitempty"`
	QueueLimit int    `json:"queue_limit,omitempty"`
	// EagerFirstEvent is a pointer so an explicit false can be told apart
	// from "omitted" (default true).
	EagerFirstEvent *bool `json:"eager_first_event,omitempty"`
}

func (c ChatConfig) Template() string {
	if t := strings.TrimSpace(c.OutputTemplate); t != "" {
		return c.OutputTemplate
	}
	return DefaultOutputTemplate
}

// CleanWebhooks returns the trimmed, non-blank webhook URLs.
func (c ChatConfig) CleanWebhooks() []string {
	out := make([]string, 0, len(c.Webhooks))
	for _, w := range c.Webhooks {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

const (
	SourceFile  = "file"
	SourceStdin = "stdin"
)

// SourceConfig is one input stream relayed to chat.
//
// Level applies to plain-text lines; JSON lines carry their own level.
type SourceConfig struct {
	Type  string `json:"type"`
	Path  string `json:"path,omitempty"`
	Level string `json:"level,omitempty"`
	// Poll uses stat polling instead of inotify (network filesystems).
	Poll bool `json:"poll,omitempty"`
	// FromStart reads the whole file instead of seeking to its end.
	FromStart bool `json:"from_start,omitempty"`
}

// HeartbeatConfig posts a periodic liveness line.
//
// Schedule uses cron syntax (5 fields) or descriptors such as "@every 1h".
type HeartbeatConfig struct {
	Schedule string `json:"schedule"`
	Message  string `json:"message,omitempty"`
	Level    string `json:"level,omitempty"`
}

// StorageConfig controls the failure journal.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/gchatlog" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// AdminConfig exposes /healthz and, optionally, pprof.
//
// A non-loopback addr requires token or allow_insecure.
type AdminConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

// AdminServer maps the section onto admin.Config. A nil section is disabled.
func (c *Config) AdminServer() admin.Config {
	if c.Admin == nil {
		return admin.Config{}
	}
	return admin.Config{
		Enabled:       c.Admin.Enabled,
		Addr:          strings.TrimSpace(c.Admin.Addr),
		Token:         c.Admin.Token,
		AllowInsecure: c.Admin.AllowInsecure,
		Pprof:         c.Admin.Pprof,
	}
}

// LogxConfig converts the logging and chat sections into logx settings.
func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    c.Chat.Enabled,
			MinLevel:   c.Chat.MinLevel,
			RatePerSec: c.Chat.RatePerSec,
		},
	}
}
