package app

import (
	"context"
	"io"
	"strings"
	"time"

	"gchatlog/internal/config"
	"gchatlog/internal/runtime/supervisor"
	"gchatlog/internal/source"
	logx "gchatlog/pkg/logx"
)

// fileSources runs the configured file tails under their own supervisor so a
// reload can replace them without touching the rest of the app.
type fileSources struct {
	sup *supervisor.Supervisor
}

func startFileSources(parent context.Context, cfgs []config.SourceConfig, sink source.Sink, log logx.Logger) *fileSources {
	sup := supervisor.New(parent, supervisor.WithLogger(log))
	for _, sc := range cfgs {
		if !strings.EqualFold(strings.TrimSpace(sc.Type), config.SourceFile) {
			continue
		}
		path := strings.TrimSpace(sc.Path)
		dec := source.Decoder{Name: path, Level: logx.ParseLevel(sc.Level, logx.LevelInfo)}
		opts := source.TailOptions{Poll: sc.Poll, FromStart: sc.FromStart}
		sup.GoRestart("source.file:"+path, func(ctx context.Context) error {
			return source.Tail(ctx, path, opts, dec, sink, log)
		}, supervisor.WithRestartBackoff(time.Second, time.Minute))
	}
	return &fileSources{sup: sup}
}

func (f *fileSources) stop(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f.sup.Stop(ctx)
}

func stdinSource(cfgs []config.SourceConfig) (config.SourceConfig, bool) {
	for _, sc := range cfgs {
		if strings.EqualFold(strings.TrimSpace(sc.Type), config.SourceStdin) {
			return sc, true
		}
	}
	return config.SourceConfig{}, false
}

// runStdin relays r until EOF, then closes done.
func runStdin(ctx context.Context, r io.Reader, sc config.SourceConfig, sink source.Sink, log logx.Logger, done chan<- struct{}) error {
	defer close(done)
	dec := source.Decoder{Name: config.SourceStdin, Level: logx.ParseLevel(sc.Level, logx.LevelInfo)}
	err := source.Read(ctx, r, dec, sink, log)
	log.Info("stdin closed")
	return err
}
