package msgfmt

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"gchatlog/pkg/logevent"
)

var at = time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)

func mustTemplate(t *testing.T, tpl string, opts ...Option) *Template {
	t.Helper()
	tt, err := New(tpl, append([]Option{WithLocale(language.English)}, opts...)...)
	require.NoError(t, err)
	return tt
}

func TestFormatBuiltins(t *testing.T) {
	tpl := mustTemplate(t, "{Timestamp:15:04:05} [{Level:u3}] {Message:lj}{NewLine}{Exception}")
	ev := logevent.New(at, zerolog.WarnLevel, "user {User} logged in from {Ip}", map[string]any{
		"User": "ana",
		"Ip":   "10.0.0.1",
	}).WithError("boom")

	out, err := tpl.Format(ev)
	require.NoError(t, err)
	assert.Equal(t, "10:20:30 [WRN] user ana logged in from 10.0.0.1\nboom\n", out)
}

func TestFormatQuotesStringsWithoutLiteralFlag(t *testing.T) {
	tpl := mustTemplate(t, "{Message}")
	ev := logevent.New(at, zerolog.InfoLevel, "hello {Name}", map[string]any{"Name": "bob"})
	out, _ := tpl.Format(ev)
	assert.Equal(t, `hello "bob"`, out)
}

func TestFormatLevelVariants(t *testing.T) {
	ev := logevent.New(at, zerolog.InfoLevel, "", nil)
	cases := map[string]string{
		"{Level}":    "Information",
		"{Level:u3}": "INF",
		"{Level:w3}": "inf",
		"{Level:u}":  "INFORMATION",
		"{Level:w}":  "information",
	}
	for tplText, want := range cases {
		out, err := mustTemplate(t, tplText).Format(ev)
		require.NoError(t, err)
		assert.Equal(t, want, out, tplText)
	}
}

func TestFormatMissingPropertyKeepsToken(t *testing.T) {
	tpl := mustTemplate(t, "{Message:l} {Region,8}|")
	ev := logevent.New(at, zerolog.InfoLevel, "id={Id}", nil)
	out, _ := tpl.Format(ev)
	assert.Equal(t, "id={Id} {Region,8}|", out)
}

func TestFormatEscapedBracesAndAlignment(t *testing.T) {
	tpl := mustTemplate(t, "{{{Level,-6:u3}}} {App,5}")
	ev := logevent.New(at, zerolog.ErrorLevel, "", map[string]any{"App": "api"})
	out, _ := tpl.Format(ev)
	assert.Equal(t, "{ERR   }   api", out)
}

func TestFormatPropertiesExcludesRenderedNames(t *testing.T) {
	tpl := mustTemplate(t, "{Message:l} {App} {Properties}")
	ev := logevent.New(at, zerolog.InfoLevel, "took {Ms}", map[string]any{
		"Ms":    int64(12),
		"App":   "api",
		"count": int64(3),
		"host":  "web-1",
	})
	out, _ := tpl.Format(ev)
	assert.Equal(t, `took 12 api {count=3, host="web-1"}`, out)
}

func TestFormatNumbersEnglish(t *testing.T) {
	tpl := mustTemplate(t, "{A} {B:N2} {C} {D:F1}")
	ev := logevent.New(at, zerolog.InfoLevel, "", map[string]any{
		"A": int64(1234),
		"B": 1234.5,
		"C": 0.125,
		"D": 2.24,
	})
	out, _ := tpl.Format(ev)
	assert.Equal(t, "1234 1,234.50 0.125 2.2", out)
}

func TestFormatNumbersGerman(t *testing.T) {
	tpl := mustTemplate(t, "{C}", WithLocale(language.German))
	ev := logevent.New(at, zerolog.InfoLevel, "", map[string]any{"C": 0.5})
	out, _ := tpl.Format(ev)
	assert.Equal(t, "0,5", out)
}

func TestNewRejectsEmptyTemplate(t *testing.T) {
	_, err := New("  ")
	assert.ErrorIs(t, err, ErrEmptyTemplate)
}

func TestParseLocale(t *testing.T) {
	assert.Equal(t, language.MustParse("de-DE"), ParseLocale("de_DE.UTF-8"))
	assert.Equal(t, language.English, ParseLocale("C"))
	assert.Equal(t, language.English, ParseLocale("POSIX"))
	assert.Equal(t, language.MustParse("fr"), ParseLocale("fr"))
}

func TestHostLocaleFromEnv(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "pt_BR.UTF-8")
	assert.Equal(t, language.MustParse("pt-BR"), HostLocale())
}
