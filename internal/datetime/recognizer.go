package datetime

import (
	"sort"

	"go.uber.org/zap"
)

// Recognizer runs the detection pipeline of one locale
type Recognizer struct {
	repo     *Repository
	primary  []*Engine
	sub      map[RuleID]*Engine
	clear    *Engine
	past     *Engine
	resolver *Resolver
	logger   *zap.Logger
}

// NewRecognizer builds every engine of repo once. The primary engines scan
// in order: universal, locale, then backup locale.
func NewRecognizer(repo *Repository, logger *zap.Logger) *Recognizer {
	logger = logger.With(zap.String("locale", repo.Locale()))

	r := &Recognizer{
		repo:     repo,
		sub:      make(map[RuleID]*Engine, len(repo.subRulesMap)),
		resolver: NewResolver(repo, logger),
		logger:   logger,
	}

	r.primary = append(r.primary, NewEngine("universe", repo, RuleSet{
		Rules:       repo.universeRules,
		SubRules:    repo.subRules,
		Param:       repo.param,
		ParamBackup: repo.paramBackup,
	}, logger))

	if len(repo.localeRules) > 0 {
		r.primary = append(r.primary, NewEngine("locale", repo, RuleSet{
			Rules:    repo.localeRules,
			SubRules: repo.subRules,
			Param:    repo.param,
		}, logger))
	}

	if len(repo.localeRulesBackup) > 0 {
		r.primary = append(r.primary, NewEngine("backup", repo, RuleSet{
			Rules:    repo.localeRulesBackup,
			SubRules: repo.subRules,
			Param:    repo.paramBackup,
		}, logger))
	}

	groups := make([]string, 0, len(repo.subRulesMap))
	for group := range repo.subRulesMap {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		r.sub[RuleID(group)] = NewEngine("sub:"+group, repo, RuleSet{
			Rules:       repo.subRulesMap[group],
			SubRules:    repo.subRules,
			Param:       repo.param,
			ParamBackup: repo.paramBackup,
		}, logger)
	}

	r.clear = NewEngine("clear", repo, RuleSet{
		Rules:       repo.filterRules,
		SubRules:    repo.subRules,
		Param:       repo.param,
		ParamBackup: repo.paramBackup,
	}, logger)

	r.past = NewEngine("past", repo, RuleSet{
		Rules:       repo.pastRules,
		Param:       repo.param,
		ParamBackup: repo.paramBackup,
	}, logger)

	logger.Info("Recognizer built",
		zap.Int("primary_engines", len(r.primary)),
		zap.Int("sub_engines", len(r.sub)))

	return r
}

// Locale returns the resolved locale of the recognizer
func (r *Recognizer) Locale() string { return r.repo.Locale() }

// Recognize returns the final, non-overlapping matches of text sorted by
// begin offset
func (r *Recognizer) Recognize(text string) []Match {
	return r.RecognizeRunes([]rune(text))
}

// RecognizeRunes is Recognize over a decoded text
func (r *Recognizer) RecognizeRunes(text []rune) []Match {
	if len(text) == 0 {
		return []Match{}
	}

	var raw []Match
	for _, e := range r.primary {
		for _, m := range e.Scan(text) {
			raw = r.expand(text, m, raw)
		}
	}
	for i := range raw {
		raw[i].Type = Classify(raw[i].RuleID)
	}

	cleared := r.clear.Scan(text)
	past := r.past.Scan(text)

	out := r.resolver.Resolve(text, raw, cleared, past)
	if out == nil {
		out = []Match{}
	}
	return out
}

// expand appends m to out, or its decomposition when m's rule has a
// sub-engine. Sub-matches are re-expanded only while they shrink.
func (r *Recognizer) expand(text []rune, m Match, out []Match) []Match {
	sub, ok := r.sub[m.RuleID]
	if !ok {
		return append(out, m)
	}

	for _, s := range sub.Scan(text[m.Begin:m.End]) {
		s.Begin += m.Begin
		s.End += m.Begin
		if s.End-s.Begin < m.End-m.Begin {
			out = r.expand(text, s, out)
		} else {
			out = append(out, s)
		}
	}
	return out
}
