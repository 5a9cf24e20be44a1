// Package logx configures gchatlog's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional chat writer that turns every line back into a
//     logevent.Event and hands it to an EventSink (min-level + rate limiting)
package logx
