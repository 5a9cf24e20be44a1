package logevent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"
)

var ErrNotObject = errors.New("logevent: json line is not an object")

// Time layouts tried for string "time" fields, in order.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000Z07:00",
	time.RFC3339Nano,
	time.RFC3339,
}

var parsers fastjson.ParserPool

// ParseJSON decodes one zerolog JSON line.
//
// Well-known fields (level, time, message, err/error) map onto Event fields;
// everything else becomes a property. Numbers that fit an int64 are kept as
// int64, others as float64. Nested objects and arrays are kept as their raw
// JSON text. A missing level defaults to info, a missing time to now.
func ParseJSON(line []byte) (Event, error) {
	p := parsers.Get()
	defer parsers.Put(p)

	v, err := p.ParseBytes(line)
	if err != nil {
		return Event{}, fmt.Errorf("logevent: %w", err)
	}
	obj, err := v.Object()
	if err != nil {
		return Event{}, ErrNotObject
	}

	ev := Event{Level: zerolog.InfoLevel}
	props := map[string]any{}
	obj.Visit(func(k []byte, fv *fastjson.Value) {
		key := string(k)
		switch key {
		case zerolog.LevelFieldName:
			if s, ok := stringValue(fv); ok {
				if lvl, err := zerolog.ParseLevel(strings.ToLower(s)); err == nil {
					ev.Level = lvl
				}
			}
		case zerolog.TimestampFieldName:
			ev.Time = parseTime(fv)
		case zerolog.MessageFieldName, "msg":
			if s, ok := stringValue(fv); ok && ev.Template == "" {
				ev.Template = escapeBraces(s)
			}
		case zerolog.ErrorFieldName, "err", "error":
			if s, ok := stringValue(fv); ok {
				ev.Error = s
			} else {
				ev.Error = fv.String()
			}
		default:
			props[key] = convert(fv)
		}
	})
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if len(props) > 0 {
		ev.props = props
	}
	return ev, nil
}

func stringValue(v *fastjson.Value) (string, bool) {
	if v.Type() != fastjson.TypeString {
		return "", false
	}
	b, err := v.StringBytes()
	if err != nil {
		return "", false
	}
	return string(b), true
}

func parseTime(v *fastjson.Value) time.Time {
	switch v.Type() {
	case fastjson.TypeString:
		s, _ := stringValue(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	case fastjson.TypeNumber:
		// zerolog.TimeFormatUnix* variants.
		if n, err := v.Int64(); err == nil {
			switch {
			case n > 1e17:
				return time.Unix(0, n)
			case n > 1e14:
				return time.UnixMicro(n)
			case n > 1e11:
				return time.UnixMilli(n)
			default:
				return time.Unix(n, 0)
			}
		}
		if f, err := v.Float64(); err == nil {
			sec := int64(f)
			return time.Unix(sec, int64((f-float64(sec))*1e9))
		}
	}
	return time.Time{}
}

func convert(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeString:
		s, _ := stringValue(v)
		return s
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeNull:
		return nil
	default:
		return RawJSON(v.String())
	}
}

// RawJSON is a nested object or array kept verbatim.
type RawJSON string
