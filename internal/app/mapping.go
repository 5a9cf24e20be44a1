package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"gchatlog/internal/config"
	"gchatlog/internal/storage"
	"gchatlog/pkg/batching"
	"gchatlog/pkg/gchat"
	logx "gchatlog/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapBatchOptions(c config.BatchConfig) (batching.Options, error) {
	period, err := config.ParseDurationOrDefault("chat.batch.period", c.Period, batching.DefaultPeriod)
	if err != nil {
		return batching.Options{}, err
	}
	eager := true
	if c.EagerFirstEvent != nil {
		eager = *c.EagerFirstEvent
	}
	return batching.Options{
		BatchSizeLimit:        c.SizeLimit,
		Period:                period,
		QueueLimit:            c.QueueLimit,
		EagerlyEmitFirstEvent: eager,
	}, nil
}

// mapSinkOptions translates the chat section. hooks carry the failure
// reporting; client overrides the HTTP transport (tests).
func mapSinkOptions(c config.ChatConfig, hooks batching.Hooks, client gchat.Doer) ([]gchat.SinkOption, error) {
	timeout, err := config.ParseDurationOrDefault("chat.timeout", c.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	locale := language.Und
	if tag := strings.TrimSpace(c.Locale); tag != "" {
		if locale, err = language.Parse(tag); err != nil {
			return nil, fmt.Errorf("chat.locale: %w", err)
		}
	}
	bo, err := mapBatchOptions(c.Batch)
	if err != nil {
		return nil, err
	}

	opts := []gchat.SinkOption{
		gchat.WithThreadKey(c.ThreadKey),
		gchat.WithTimeout(timeout),
		gchat.WithLocale(locale),
		gchat.WithMinLevel(logx.ParseLevel(c.MinLevel, zerolog.TraceLevel)),
		gchat.WithBatching(bo),
		gchat.WithHooks(hooks),
	}
	if client != nil {
		opts = append(opts, gchat.WithClient(client))
	}
	return opts, nil
}
