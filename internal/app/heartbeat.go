package app

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"gchatlog/internal/config"
	logx "gchatlog/pkg/logx"
)

const defaultHeartbeatMessage = "gchatlog alive"

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Warn(msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}

// heartbeat logs a liveness line on a cron schedule. The line goes through
// the app logger, so it reaches chat when chat logging is enabled.
type heartbeat struct {
	c     *cron.Cron
	beats atomic.Int64
}

func startHeartbeat(hc *config.HeartbeatConfig, log logx.Logger) (*heartbeat, error) {
	if hc == nil || strings.TrimSpace(hc.Schedule) == "" {
		return nil, nil
	}
	msg := hc.Message
	if strings.TrimSpace(msg) == "" {
		msg = defaultHeartbeatMessage
	}
	level := logx.ParseLevel(hc.Level, logx.LevelInfo)

	hb := &heartbeat{}
	hb.c = cron.New(
		cron.WithParser(config.ScheduleParser),
		cron.WithLogger(cronLogger{log: log}),
		cron.WithChain(cron.Recover(cronLogger{log: log}), cron.SkipIfStillRunning(cronLogger{log: log})),
	)
	if _, err := hb.c.AddFunc(strings.TrimSpace(hc.Schedule), func() {
		n := hb.beats.Add(1)
		log.Log(level, msg, logx.String("kind", "heartbeat"), logx.Int64("beat", n))
	}); err != nil {
		return nil, err
	}
	hb.c.Start()
	log.Info("heartbeat scheduled", logx.String("schedule", hc.Schedule))
	return hb, nil
}

func (h *heartbeat) stop(ctx context.Context) {
	if h == nil {
		return
	}
	done := h.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
