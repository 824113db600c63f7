package datetime

import (
	"strings"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/raaihank/chrono-sentinel/internal/rules"
)

const (
	optParamPrefix    = "param_"
	optPlaceholderFmt = "[paramopt_"
)

// compiler expands rule templates into pattern sources. The passes run in a
// fixed order: sub-rules, optional fragments, then parameters. Each later pass
// assumes the earlier markers are already resolved.
type compiler struct {
	repo        *Repository
	subRules    map[string]string
	param       map[string]string
	paramBackup map[string]string
	logger      *zap.Logger
}

// compile returns the expanded pattern source and whether the rule is usable
func (c *compiler) compile(template string) (string, bool) {
	text := c.inlineSubRules(template)
	text = c.inlineOptRules(text)
	text, valid := c.substituteParams(text)
	if !valid || trimSpace(text) == "" {
		return "", false
	}
	return text, true
}

// inlineSubRules replaces every sub-rule reference with its literal text.
// Unknown names are replaced with nothing.
func (c *compiler) inlineSubRules(rule string) string {
	if len(c.subRules) == 0 {
		return rule
	}
	p := c.repo.pattern(rules.PatternSubRules)
	if p == nil {
		c.logger.Debug("Sub-rule pattern missing, skipping sub-rule inlining")
		return rule
	}

	out := rule
	for _, m := range findAllString(p.find, rule) {
		name := groupString(m, 1)
		out = strings.ReplaceAll(out, m.String(), c.subRules[name])
	}
	return out
}

// inlineOptRules resolves optional parameter fragments. A fragment whose
// parameter is absent from both tables is deleted, along with a leading "|".
func (c *compiler) inlineOptRules(rule string) string {
	if len(c.param) == 0 && len(c.paramBackup) == 0 {
		return rule
	}
	p := c.repo.pattern(rules.PatternOptRules)
	if p == nil {
		c.logger.Debug("Optional-rule pattern missing, skipping optional fragments")
		return rule
	}

	runes := []rune(rule)
	out := rule
	for _, m := range findAllString(p.find, rule) {
		key := groupString(m, 1)
		name := optParamPrefix + key
		primary := c.repo.Get(c.param, name)
		backup := c.repo.Get(c.paramBackup, name)

		target := primary
		if primary == "" && backup != "" {
			target = backup
		} else if trimSpace(primary) != "" && trimSpace(backup) != "" {
			target = primary + "|" + backup
		}

		if primary == "" && backup == "" {
			start := m.Index
			if start > 0 && runes[start-1] == '|' {
				start--
			}
			out = strings.ReplaceAll(out, string(runes[start:m.Index+m.Length]), "")
		}
		out = strings.ReplaceAll(out, optPlaceholderFmt+key+"]", target)
	}
	return out
}

// substituteParams replaces every [key] placeholder with the resolved
// parameter alternation. The rule becomes invalid as soon as one
// placeholder resolves to nothing.
func (c *compiler) substituteParams(rule string) (string, bool) {
	if len(c.param) == 0 && len(c.paramBackup) == 0 {
		return rule, true
	}
	p := c.repo.pattern(rules.PatternRules)
	if p == nil {
		c.logger.Debug("Parameter pattern missing, skipping parameter substitution")
		return rule, true
	}

	out := rule
	for _, m := range findAllString(p.find, rule) {
		key := groupString(m, 1)
		primary := c.repo.Get(c.param, key)
		backup := c.repo.Get(c.paramBackup, key)

		target := primary
		if target == "" {
			target = backup
		}
		if primary != "" && backup != "" &&
			!strings.HasSuffix(primary, "]") && !strings.HasSuffix(primary, `]\b`) {
			target = primary + "|" + backup
		}
		if trimSpace(target) == "" {
			return out, false
		}
		out = strings.ReplaceAll(out, "["+key+"]", target)
	}
	return out, true
}

// findAllString returns the successive non-overlapping matches of re in s
func findAllString(re *regexp2.Regexp, s string) []*regexp2.Match {
	var out []*regexp2.Match
	m, err := re.FindStringMatch(s)
	for err == nil && m != nil {
		out = append(out, m)
		m, err = re.FindNextMatch(m)
	}
	return out
}

func groupString(m *regexp2.Match, n int) string {
	g := m.GroupByNumber(n)
	if g == nil {
		return ""
	}
	return g.String()
}
