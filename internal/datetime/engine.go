package datetime

import (
	"sort"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
)

// RuleSet is the input of one Engine: the rules to compile plus the tables
// their templates are expanded against
type RuleSet struct {
	Rules       map[string]string
	SubRules    map[string]string
	Param       map[string]string
	ParamBackup map[string]string
}

type compiledRule struct {
	id     RuleID
	source string
	re     *regexp2.Regexp
}

// Engine scans text with one compiled rule subset
type Engine struct {
	name   string
	rules  []compiledRule
	logger *zap.Logger
}

// NewEngine compiles set against repo. Rules that expand to nothing or fail
// to compile are logged and left out.
func NewEngine(name string, repo *Repository, set RuleSet, logger *zap.Logger) *Engine {
	e := &Engine{
		name:   name,
		logger: logger,
	}
	if len(set.Rules) == 0 {
		return e
	}

	c := &compiler{
		repo:        repo,
		subRules:    set.SubRules,
		param:       set.Param,
		paramBackup: set.ParamBackup,
		logger:      logger,
	}

	ids := make([]string, 0, len(set.Rules))
	for id := range set.Rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	invalid := 0
	for _, id := range ids {
		source, ok := c.compile(set.Rules[id])
		if !ok {
			invalid++
			logger.Debug("Rule expanded to an empty pattern",
				zap.String("engine", name),
				zap.String("rule_id", id))
			continue
		}

		re, err := regexp2.Compile(source, regexp2.IgnoreCase)
		if err != nil {
			invalid++
			logger.Warn("Rule failed to compile",
				zap.String("engine", name),
				zap.String("rule_id", id),
				zap.Error(err))
			continue
		}
		if repo.matchTimeout > 0 {
			re.MatchTimeout = repo.matchTimeout
		}
		e.rules = append(e.rules, compiledRule{id: RuleID(id), source: source, re: re})
	}

	logger.Debug("Engine compiled",
		zap.String("engine", name),
		zap.Int("rules", len(e.rules)),
		zap.Int("skipped", invalid))

	return e
}

// Name returns the engine name used in logs
func (e *Engine) Name() string { return e.name }

// Len returns the number of compiled rules
func (e *Engine) Len() int { return len(e.rules) }

// Sources returns the expanded pattern source of every compiled rule
func (e *Engine) Sources() map[RuleID]string {
	out := make(map[RuleID]string, len(e.rules))
	for _, r := range e.rules {
		out[r.id] = r.source
	}
	return out
}

// Scan returns every non-empty match of every rule in text, untyped and in
// rule order. Matches of one rule never overlap each other.
func (e *Engine) Scan(text []rune) []Match {
	if len(text) == 0 {
		return nil
	}

	var out []Match
	for _, r := range e.rules {
		m, err := r.re.FindRunesMatch(text)
		for err == nil && m != nil {
			if m.Length > 0 {
				out = append(out, Match{
					Begin:  m.Index,
					End:    m.Index + m.Length,
					RuleID: r.id,
				})
			}
			m, err = r.re.FindNextMatch(m)
		}
		if err != nil {
			e.logger.Warn("Rule search aborted",
				zap.String("engine", e.name),
				zap.String("rule_id", string(r.id)),
				zap.Error(err))
		}
	}
	return out
}
