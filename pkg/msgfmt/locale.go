package msgfmt

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

// HostLocale returns the process locale from LC_ALL, LC_MESSAGES or LANG
// (first non-empty wins). "C", "POSIX" and unparsable values map to English.
func HostLocale() language.Tag {
	for _, k := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return ParseLocale(v)
		}
	}
	return language.English
}

// ParseLocale accepts BCP 47 tags ("de-DE") and POSIX locale names
// ("de_DE.UTF-8@euro").
func ParseLocale(s string) language.Tag {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	if s == "" || s == "C" || s == "POSIX" {
		return language.English
	}
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return language.English
	}
	return tag
}
