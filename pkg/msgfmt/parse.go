package msgfmt

import (
	"strconv"
	"strings"
)

type segment struct {
	text string

	hole   bool
	name   string
	format string
	align  int
}

func (s segment) raw() string {
	var b strings.Builder
	b.WriteByte('{')
	b.WriteString(s.name)
	if s.align != 0 {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(s.align))
	}
	if s.format != "" {
		b.WriteByte(':')
		b.WriteString(s.format)
	}
	b.WriteByte('}')
	return b.String()
}

// parse splits a template into literal text and holes.
// "{{" and "}}" are literal braces; an unterminated or malformed hole is kept
// as literal text.
func parse(tpl string) []segment {
	var (
		out []segment
		lit strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch {
		case c == '{' && i+1 < len(tpl) && tpl[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tpl) && tpl[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				lit.WriteString(tpl[i:])
				i = len(tpl)
				continue
			}
			body := tpl[i+1 : i+1+end]
			seg, ok := parseHole(body)
			if !ok {
				lit.WriteString(tpl[i : i+2+end])
			} else {
				flush()
				out = append(out, seg)
			}
			i += end + 1
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return out
}

func parseHole(body string) (segment, bool) {
	seg := segment{hole: true}
	name := body
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		seg.format = name[idx+1:]
		name = name[:idx]
	}
	if idx := strings.IndexByte(name, ','); idx >= 0 {
		n, err := strconv.Atoi(strings.TrimSpace(name[idx+1:]))
		if err != nil {
			return segment{}, false
		}
		seg.align = n
		name = name[:idx]
	}
	name = strings.TrimLeft(name, "@$")
	if !validName(name) {
		return segment{}, false
	}
	seg.name = name
	return seg, true
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == '_' || r == '.' || r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		return false
	}
	return true
}

func pad(s string, align int) string {
	if align == 0 {
		return s
	}
	width := align
	if width < 0 {
		width = -width
	}
	n := len([]rune(s))
	if n >= width {
		return s
	}
	fill := strings.Repeat(" ", width-n)
	if align < 0 {
		return s + fill
	}
	return fill + s
}
