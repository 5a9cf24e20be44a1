// Package logevent defines the immutable log record consumed by the chat
// delivery pipeline.
//
// Events are produced by the host logger (zerolog JSON lines) or by log
// sources (tailed files, stdin) and are only read afterwards. Properties is
// copied on construction so callers can't mutate an event behind the
// dispatcher's back.
package logevent

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

// Event is one structured log record.
type Event struct {
	Time     time.Time
	Level    Level
	Template string
	// Error holds rendered error text (zerolog "err"/"error" field), if any.
	Error string

	props map[string]any
}

// New builds an event. props is copied.
func New(at time.Time, level Level, template string, props map[string]any) Event {
	ev := Event{Time: at, Level: level, Template: template}
	if len(props) > 0 {
		ev.props = make(map[string]any, len(props))
		for k, v := range props {
			ev.props[k] = v
		}
	}
	return ev
}

// WithError returns a copy of ev carrying errText.
func (e Event) WithError(errText string) Event {
	e.Error = errText
	return e
}

// Property returns a single property value.
func (e Event) Property(name string) (any, bool) {
	v, ok := e.props[name]
	return v, ok
}

func (e Event) NumProperties() int { return len(e.props) }

// PropertyNames returns property names sorted ascending.
func (e Event) PropertyNames() []string {
	names := make([]string, 0, len(e.props))
	for k := range e.props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Properties returns a copy of the property map.
func (e Event) Properties() map[string]any {
	out := make(map[string]any, len(e.props))
	for k, v := range e.props {
		out[k] = v
	}
	return out
}

// FromText wraps a plain text line. Braces in text are not treated as
// property holes.
func FromText(text string, level Level, at time.Time, props map[string]any) Event {
	return New(at, level, escapeBraces(text), props)
}

func escapeBraces(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '}' {
			n++
		}
	}
	if n == 0 {
		return s
	}
	b := make([]byte, 0, len(s)+n)
	for i := 0; i < len(s); i++ {
		b = append(b, s[i])
		if s[i] == '{' || s[i] == '}' {
			b = append(b, s[i])
		}
	}
	return string(b)
}
