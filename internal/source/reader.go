package source

import (
	"bufio"
	"context"
	"io"

	logx "gchatlog/pkg/logx"
)

const maxLineSize = 1 << 20

// Read relays every line of r until EOF or ctx is done. Lines longer than
// 1 MiB fail the read.
func Read(ctx context.Context, r io.Reader, dec Decoder, sink Sink, log logx.Logger) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var relayed, rejected int
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, ok := dec.Decode(sc.Text())
		if !ok {
			continue
		}
		if sink.Emit(ev) {
			relayed++
		} else {
			rejected++
		}
	}
	log.Debug("source drained", logx.String("source", dec.Name), logx.Int("relayed", relayed), logx.Int("rejected", rejected))
	return sc.Err()
}
