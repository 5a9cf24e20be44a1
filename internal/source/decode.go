// Package source turns log streams (followed files, stdin) into log events.
package source

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gchatlog/pkg/logevent"
)

// SourceProperty names the stream a relayed line came from.
const SourceProperty = "source"

// Sink accepts relayed events without blocking.
type Sink interface {
	Emit(ev logevent.Event) bool
}

// Decoder maps raw lines onto events. JSON object lines are decoded as
// zerolog output; anything else becomes a plain-text event at Level.
type Decoder struct {
	Name  string
	Level zerolog.Level
	Now   func() time.Time
}

// Decode returns false for blank lines.
func (d Decoder) Decode(line string) (logevent.Event, bool) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return logevent.Event{}, false
	}

	if strings.HasPrefix(trimmed, "{") {
		if ev, err := logevent.ParseJSON([]byte(trimmed)); err == nil {
			if d.Name == "" {
				return ev, true
			}
			props := ev.Properties()
			if _, taken := props[SourceProperty]; !taken {
				props[SourceProperty] = d.Name
			}
			return logevent.New(ev.Time, ev.Level, ev.Template, props).WithError(ev.Error), true
		}
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	var props map[string]any
	if d.Name != "" {
		props = map[string]any{SourceProperty: d.Name}
	}
	return logevent.FromText(line, d.Level, now(), props), true
}
