package msgfmt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"gchatlog/pkg/logevent"
)

// formatValue renders one property value. Numeric formats:
//
//	N, N<d>  grouped, d fraction digits (default 2)
//	F<d>     ungrouped, d fraction digits (default 2)
//
// Without a format, integers render plainly and floats keep their full
// precision with the locale's decimal separator.
func formatValue(p *message.Printer, v any, format string, quoteStrings bool) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		if quoteStrings {
			return strconv.Quote(x)
		}
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return formatInt(p, int64(x), format)
	case int32:
		return formatInt(p, int64(x), format)
	case int64:
		return formatInt(p, x, format)
	case uint:
		return formatFloat(p, float64(x), format, true)
	case uint64:
		return formatFloat(p, float64(x), format, true)
	case float32:
		return formatFloat(p, float64(x), format, false)
	case float64:
		return formatFloat(p, x, format, false)
	case time.Time:
		if format == "" {
			return x.Format(time.RFC3339Nano)
		}
		return x.Format(format)
	case time.Duration:
		return x.String()
	case logevent.RawJSON:
		return string(x)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func formatInt(p *message.Printer, n int64, format string) string {
	if format == "" {
		return strconv.FormatInt(n, 10)
	}
	return formatFloat(p, float64(n), format, true)
}

func formatFloat(p *message.Printer, f float64, format string, integral bool) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	kind, digits := numericFormat(format)
	switch kind {
	case 'N':
		return p.Sprintf("%v", number.Decimal(f, number.MinFractionDigits(digits), number.MaxFractionDigits(digits)))
	case 'F':
		return p.Sprintf("%v", number.Decimal(f, number.NoSeparator(), number.MinFractionDigits(digits), number.MaxFractionDigits(digits)))
	}
	if integral {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	frac := 0
	if i := strings.IndexByte(s, '.'); i >= 0 {
		frac = len(s) - i - 1
	}
	return p.Sprintf("%v", number.Decimal(f, number.NoSeparator(), number.MaxFractionDigits(frac)))
}

func numericFormat(format string) (byte, int) {
	if format == "" {
		return 0, 0
	}
	kind := format[0]
	if kind == 'n' {
		kind = 'N'
	}
	if kind == 'f' {
		kind = 'F'
	}
	if kind != 'N' && kind != 'F' {
		return 0, 0
	}
	digits := 2
	if len(format) > 1 {
		d, err := strconv.Atoi(format[1:])
		if err != nil || d < 0 || d > 15 {
			return 0, 0
		}
		digits = d
	}
	return kind, digits
}
