package datetime

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/raaihank/chrono-sentinel/internal/rules"
)

func commonDocument() *rules.Document {
	return &rules.Document{
		Patterns: map[string]rules.Pattern{
			rules.PatternRules:    {Expr: `\[(param_\w+)\]`},
			rules.PatternOptRules: {Expr: `\[paramopt_(\w+)\]`},
			rules.PatternSubRules: {Expr: `\[(sub_\w+)\]`},
			rules.PatternDateTime: {Expr: `\s*(?:at|,)?\s*`, IgnoreCase: true},
			rules.PatternPeriod:   {Expr: `\s*(?:-|to)\s*`, IgnoreCase: true},
			rules.PatternBrackets: {Expr: `^\s*\(([^()]*)\)`},
		},
		DefaultLocale: map[string]string{"locale": "en"},
		RelDates:      map[string]string{"en": ","},
		UniverseRules: map[string]string{
			"30001": `\b\d{1,2}(?::\d{2})?\s?(?:am|pm)\b`,
			"20050": `\d{1,2}/\d{1,2}-\d{1,2}/\d{1,2}`,
		},
		SubRulesMap: map[string]map[string]string{
			"20050": {"20051": `\d{1,2}/\d{1,2}`},
		},
		PastRules: map[string]string{
			"101": `\bnot\s+`,
			"300": `\s+ago\b`,
		},
	}
}

func englishDocument() *rules.Document {
	return &rules.Document{
		Param: map[string]string{
			"param_month":   "January|February|March|April|May|June|July|August|September|October|November|December",
			"param_weekday": "Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday",
			"param_today":   "today|tomorrow|yesterday",
		},
		LocaleRules: map[string]string{
			"20001": `(?:[param_month])\s+\d{1,2}\b`,
			"20009": `(?:[param_weekday])`,
			"20010": `(?:[param_today])`,
		},
		FilterRules: map[string]string{
			"90001": `(?:[param_month])\s+\d{1,2}\s+Street\b`,
		},
	}
}

func testSource() *rules.MemorySource {
	return rules.NewMemorySource(map[string]*rules.Document{
		rules.CommonDocument: commonDocument(),
		"en":                 englishDocument(),
	})
}

func testRepository(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(context.Background(), testSource(), "en", zap.NewNop())
}

func testRecognizer(t *testing.T) *Recognizer {
	t.Helper()
	return NewRecognizer(testRepository(t), zap.NewNop())
}

// spans reduces matches to comparable [begin end type] triples
func spans(matches []Match) [][3]int {
	out := make([][3]int, 0, len(matches))
	for _, m := range matches {
		out = append(out, [3]int{m.Begin, m.End, int(m.Type)})
	}
	return out
}
