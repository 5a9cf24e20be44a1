package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"gchatlog/internal/observability/admin"
	logx "gchatlog/pkg/logx"
)

// ScheduleParser accepts 5- or 6-field cron specs and descriptors such as
// "@every 1h".
var ScheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ErrInvalid marks configuration rejected by Validate.
var ErrInvalid = errors.New("invalid config")

// FieldError names the offending key.
type FieldError struct {
	Path string
	Msg  string
}

func (e *FieldError) Error() string { return e.Path + ": " + e.Msg }

func (e *FieldError) Is(target error) bool { return target == ErrInvalid }

func fieldErr(path, format string, args ...any) error {
	return &FieldError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// Validate reports every problem in cfg at once (errors.Join).
func Validate(cfg *Config) error {
	if cfg == nil {
		return fieldErr("config", "is nil")
	}
	var errs []error

	if !logx.ValidLevel(cfg.Logging.Level) {
		errs = append(errs, fieldErr("logging.level", "unknown level %q", cfg.Logging.Level))
	}

	errs = append(errs, validateChat(cfg.Chat)...)

	stdin := 0
	for i, s := range cfg.Sources {
		p := fmt.Sprintf("sources[%d]", i)
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case SourceFile:
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, fieldErr(p+".path", "required for file sources"))
			}
		case SourceStdin:
			stdin++
			if stdin > 1 {
				errs = append(errs, fieldErr(p+".type", "stdin may be listed once"))
			}
		default:
			errs = append(errs, fieldErr(p+".type", "must be %q or %q, got %q", SourceFile, SourceStdin, s.Type))
		}
		if !logx.ValidLevel(s.Level) {
			errs = append(errs, fieldErr(p+".level", "unknown level %q", s.Level))
		}
	}

	if hb := cfg.Heartbeat; hb != nil {
		if _, err := ScheduleParser.Parse(strings.TrimSpace(hb.Schedule)); err != nil {
			errs = append(errs, fieldErr("heartbeat.schedule", "%v", err))
		}
		if !logx.ValidLevel(hb.Level) {
			errs = append(errs, fieldErr("heartbeat.level", "unknown level %q", hb.Level))
		}
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			errs = append(errs, fieldErr("storage.driver", "unknown driver %q", st.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if err := admin.CheckConfig(cfg.AdminServer()); err != nil {
		errs = append(errs, fieldErr("admin.addr", "%v", err))
	}

	return errors.Join(errs...)
}

func validateChat(c ChatConfig) []error {
	var errs []error
	if !logx.ValidLevel(c.MinLevel) {
		errs = append(errs, fieldErr("chat.min_level", "unknown level %q", c.MinLevel))
	}
	if strings.TrimSpace(c.Locale) != "" {
		if _, err := language.Parse(c.Locale); err != nil {
			errs = append(errs, fieldErr("chat.locale", "%v", err))
		}
	}
	if c.RatePerSec < 0 {
		errs = append(errs, fieldErr("chat.rate_per_sec", "must be >= 0"))
	}
	if _, err := ParseDurationField("chat.timeout", c.Timeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("chat.batch.period", c.Batch.Period); err != nil {
		errs = append(errs, err)
	}
	if c.Batch.SizeLimit < 0 {
		errs = append(errs, fieldErr("chat.batch.size_limit", "must be >= 0"))
	}
	if c.Batch.QueueLimit < 0 {
		errs = append(errs, fieldErr("chat.batch.queue_limit", "must be >= 0"))
	}

	if !c.Enabled {
		return errs
	}
	hooks := c.CleanWebhooks()
	if len(hooks) == 0 {
		errs = append(errs, fieldErr("chat.webhooks", "at least one webhook is required when chat is enabled"))
	}
	for i, w := range hooks {
		u, err := url.Parse(w)
		if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
			// The URL itself is a secret; report the position only.
			errs = append(errs, fieldErr(fmt.Sprintf("chat.webhooks[%d]", i), "not an absolute http(s) URL"))
		}
	}
	return errs
}
