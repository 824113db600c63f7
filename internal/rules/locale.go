package rules

import (
	"strings"

	"golang.org/x/text/language"
)

// Candidates returns the document names to try for a locale, most specific
// first: the identifier as given, its canonical BCP 47 form, the same with
// underscores, and finally the base language.
func Candidates(locale string) []string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return nil
	}

	out := []string{locale}
	add := func(name string) {
		for _, existing := range out {
			if existing == name {
				return
			}
		}
		out = append(out, name)
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return out
	}
	canonical := tag.String()
	add(canonical)
	add(strings.ReplaceAll(canonical, "-", "_"))

	base, confidence := tag.Base()
	if confidence != language.No {
		add(base.String())
	}
	return out
}
