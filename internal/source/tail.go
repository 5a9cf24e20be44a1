package source

import (
	"context"
	"fmt"
	"io"

	"github.com/hpcloud/tail"

	logx "gchatlog/pkg/logx"
)

type TailOptions struct {
	// Poll uses stat polling instead of inotify.
	Poll bool
	// FromStart reads existing content first; the default starts at the end.
	FromStart bool
}

// Tail follows path until ctx is done, reopening it after rotation. It
// returns an error when the tailer stops on its own so the caller can
// restart it.
func Tail(ctx context.Context, path string, opts TailOptions, dec Decoder, sink Sink, log logx.Logger) error {
	cfg := tail.Config{
		Follow: true,
		ReOpen: true,
		Poll:   opts.Poll,
		Logger: tail.DiscardingLogger,
	}
	if !opts.FromStart {
		cfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	t, err := tail.TailFile(path, cfg)
	if err != nil {
		return fmt.Errorf("tail %s: %w", path, err)
	}
	defer t.Cleanup()

	log.Info("tailing file", logx.String("path", path), logx.Bool("poll", opts.Poll))
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				if err := t.Err(); err != nil {
					return fmt.Errorf("tail %s: %w", path, err)
				}
				return fmt.Errorf("tail %s: stopped", path)
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				log.Warn("tail read error", logx.String("path", path), logx.Err(line.Err))
				continue
			}
			if ev, ok := dec.Decode(line.Text); ok {
				sink.Emit(ev)
			}
		}
	}
}
