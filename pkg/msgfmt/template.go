package msgfmt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"gchatlog/pkg/logevent"
)

// DefaultTimestampLayout is used by {Timestamp} without a format.
const DefaultTimestampLayout = "2006-01-02 15:04:05.000 -07:00"

var ErrEmptyTemplate = errors.New("msgfmt: output template is empty")

// Formatter renders one event into message text.
type Formatter interface {
	Format(ev logevent.Event) (string, error)
}

// Option configures a Template.
type Option func(*Template)

// WithLocale sets the locale used for numbers. language.Und (the zero Tag)
// selects HostLocale.
func WithLocale(tag language.Tag) Option {
	return func(t *Template) { t.locale = tag }
}

// Template is a compiled output template. Safe for concurrent use.
type Template struct {
	src    string
	segs   []segment
	locale language.Tag
	// names referenced by the output template itself; excluded from {Properties}.
	used map[string]struct{}
}

// New compiles an output template.
func New(outputTemplate string, opts ...Option) (*Template, error) {
	if strings.TrimSpace(outputTemplate) == "" {
		return nil, ErrEmptyTemplate
	}
	t := &Template{src: outputTemplate, segs: parse(outputTemplate), used: map[string]struct{}{}}
	for _, o := range opts {
		o(t)
	}
	if t.locale == language.Und {
		t.locale = HostLocale()
	}
	for _, s := range t.segs {
		if s.hole {
			t.used[s.name] = struct{}{}
		}
	}
	return t, nil
}

func (t *Template) String() string { return t.src }

func (t *Template) Locale() language.Tag { return t.locale }

// Format renders ev. It never fails for a well-formed event; the error return
// exists for Formatter implementations backed by fallible engines.
func (t *Template) Format(ev logevent.Event) (string, error) {
	// message.Printer is not safe for concurrent use.
	p := message.NewPrinter(t.locale)
	msgSegs := parse(ev.Template)

	var b strings.Builder
	b.Grow(256)
	for _, s := range t.segs {
		if !s.hole {
			b.WriteString(s.text)
			continue
		}
		switch s.name {
		case "Timestamp":
			layout := s.format
			if layout == "" {
				layout = DefaultTimestampLayout
			}
			b.WriteString(pad(ev.Time.Format(layout), s.align))
		case "Level":
			b.WriteString(pad(levelText(ev.Level, s.format), s.align))
		case "Message":
			quote := !strings.Contains(s.format, "l")
			b.WriteString(pad(renderMessage(p, msgSegs, ev, quote), s.align))
		case "NewLine":
			b.WriteString("\n")
		case "Exception":
			if ev.Error != "" {
				b.WriteString(ev.Error)
				b.WriteString("\n")
			}
		case "Properties":
			b.WriteString(pad(t.renderProperties(p, msgSegs, ev), s.align))
		default:
			v, ok := ev.Property(s.name)
			if !ok {
				b.WriteString(s.raw())
				continue
			}
			b.WriteString(pad(formatValue(p, v, s.format, false), s.align))
		}
	}
	return b.String(), nil
}

func renderMessage(p *message.Printer, segs []segment, ev logevent.Event, quote bool) string {
	var b strings.Builder
	for _, s := range segs {
		if !s.hole {
			b.WriteString(s.text)
			continue
		}
		v, ok := ev.Property(s.name)
		if !ok {
			b.WriteString(s.raw())
			continue
		}
		b.WriteString(pad(formatValue(p, v, s.format, quote), s.align))
	}
	return b.String()
}

func (t *Template) renderProperties(p *message.Printer, msgSegs []segment, ev logevent.Event) string {
	skip := make(map[string]struct{}, len(msgSegs))
	for _, s := range msgSegs {
		if s.hole {
			skip[s.name] = struct{}{}
		}
	}
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for _, name := range ev.PropertyNames() {
		if _, ok := skip[name]; ok {
			continue
		}
		if _, ok := t.used[name]; ok {
			continue
		}
		v, _ := ev.Property(name)
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(formatValue(p, v, "", true))
	}
	b.WriteByte('}')
	return b.String()
}

var levelNames = map[zerolog.Level][2]string{
	zerolog.TraceLevel: {"Trace", "TRC"},
	zerolog.DebugLevel: {"Debug", "DBG"},
	zerolog.InfoLevel:  {"Information", "INF"},
	zerolog.WarnLevel:  {"Warning", "WRN"},
	zerolog.ErrorLevel: {"Error", "ERR"},
	zerolog.FatalLevel: {"Fatal", "FTL"},
	zerolog.PanicLevel: {"Panic", "PNC"},
}

func levelText(l zerolog.Level, format string) string {
	names, ok := levelNames[l]
	if !ok {
		names = [2]string{fmt.Sprint(l), strings.ToUpper(fmt.Sprint(l))}
	}
	switch format {
	case "u3":
		return names[1]
	case "w3":
		return strings.ToLower(names[1])
	case "u":
		return strings.ToUpper(names[0])
	case "w":
		return strings.ToLower(names[0])
	default:
		return names[0]
	}
}
