package datetime

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"
	"unicode"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/raaihank/chrono-sentinel/internal/rules"
)

const (
	baseLevelLow  = 10
	baseLevelMid  = 20
	baseLevelHigh = 30

	levelFirst  = 1
	levelSecond = 2
	levelThird  = 3

	defaultLevel = 1

	shortDateLevelParam = "mark_ShortDateLevel"
	defaultBoundary     = `\b`
)

// Option configures a Repository
type Option func(*options)

type options struct {
	matchTimeout time.Duration
}

// WithMatchTimeout bounds every single regular-expression search. Zero
// means no bound. A search that times out yields no further matches for
// that rule.
func WithMatchTimeout(d time.Duration) Option {
	return func(o *options) {
		o.matchTimeout = d
	}
}

// auxPattern is a structural helper regex, compiled for searching and for
// whole-input matching
type auxPattern struct {
	find *regexp2.Regexp
	full *regexp2.Regexp
}

// Repository holds the rule tables of one resolved locale. It is immutable
// once built.
type Repository struct {
	locale string

	universeRules     map[string]string
	localeRules       map[string]string
	localeRulesBackup map[string]string
	subRulesMap       map[string]map[string]string
	subRules          map[string]string
	filterRules       map[string]string
	pastRules         map[string]string
	param             map[string]string
	paramBackup       map[string]string
	delimiter         map[string]string
	relDates          map[string]string
	levels            map[RuleID]int
	patterns          map[string]*auxPattern

	matchTimeout time.Duration
	logger       *zap.Logger
}

// NewRepository loads the common document, the locale document (or the
// configured default locale when none exists for locale) and the backup
// locale from src. It never fails: documents that cannot be loaded leave
// their tables empty.
func NewRepository(ctx context.Context, src rules.Source, locale string, logger *zap.Logger, opts ...Option) *Repository {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	doc := &rules.Document{}
	doc.Merge(loadDocument(ctx, src, rules.CommonDocument, logger))

	resolved := ""
	var localeDoc *rules.Document
	for _, name := range rules.Candidates(locale) {
		if d := loadDocument(ctx, src, name, logger); d != nil {
			resolved, localeDoc = name, d
			break
		}
	}
	if localeDoc == nil {
		resolved = doc.DefaultLocale["locale"]
		if resolved != "" {
			localeDoc = loadDocument(ctx, src, resolved, logger)
		} else {
			resolved = locale
		}
		logger.Debug("No rules for locale, using default",
			zap.String("requested", locale),
			zap.String("resolved", resolved))
	}
	doc.Merge(localeDoc)

	var backup *rules.Document
	if name := doc.DefaultLocale["backup"]; name != "" {
		backup = loadDocument(ctx, src, name, logger)
	}

	return newRepository(resolved, doc, backup, o, logger)
}

func newRepository(locale string, doc, backup *rules.Document, o options, logger *zap.Logger) *Repository {
	if backup == nil {
		backup = &rules.Document{}
	}

	r := &Repository{
		locale:            locale,
		universeRules:     nonNil(doc.UniverseRules),
		localeRules:       nonNil(doc.LocaleRules),
		localeRulesBackup: nonNil(backup.LocaleRules),
		subRulesMap:       make(map[string]map[string]string, len(doc.SubRulesMap)),
		subRules:          nonNil(doc.SubRules),
		filterRules:       nonNil(doc.FilterRules),
		pastRules:         nonNil(doc.PastRules),
		param:             nonNil(doc.Param),
		paramBackup:       nonNil(backup.Param),
		delimiter:         nonNil(doc.Delimiter),
		relDates:          nonNil(doc.RelDates),
		levels:            make(map[RuleID]int, len(doc.Levels)+3),
		patterns:          make(map[string]*auxPattern, len(doc.Patterns)),
		matchTimeout:      o.matchTimeout,
		logger:            logger,
	}

	for group, set := range doc.SubRulesMap {
		r.subRulesMap[group] = nonNil(set)
	}
	for id, level := range doc.Levels {
		r.levels[RuleID(id)] = level
	}
	r.applyShortDateLevels()

	for name, p := range doc.Patterns {
		aux, err := r.compileAux(p)
		if err != nil {
			logger.Warn("Auxiliary pattern failed to compile",
				zap.String("pattern", name),
				zap.Error(err))
			continue
		}
		r.patterns[name] = aux
	}

	logger.Info("Rule repository loaded",
		zap.String("locale", r.locale),
		zap.Int("universe_rules", len(r.universeRules)),
		zap.Int("locale_rules", len(r.localeRules)),
		zap.Int("backup_rules", len(r.localeRulesBackup)),
		zap.Int("sub_rule_groups", len(r.subRulesMap)),
		zap.Int("patterns", len(r.patterns)))

	return r
}

func loadDocument(ctx context.Context, src rules.Source, name string, logger *zap.Logger) *rules.Document {
	if src == nil || name == "" {
		return nil
	}
	doc, err := src.Load(ctx, name)
	if err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			logger.Debug("Rule document not found", zap.String("document", name))
		} else {
			logger.Warn("Failed to load rule document", zap.String("document", name), zap.Error(err))
		}
		return nil
	}
	return doc
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}

// applyShortDateLevels orders the three short numeric date rules according
// to the locale's preferred field order
func (r *Repository) applyShortDateLevels() {
	switch r.param[shortDateLevelParam] {
	case "ymd":
		r.levels["20016"] = levelFirst
		r.levels["20014"] = levelThird
		r.levels["20015"] = levelSecond
	case "mdy":
		r.levels["20016"] = levelSecond
		r.levels["20014"] = levelThird
		r.levels["20015"] = levelFirst
	}
}

func (r *Repository) compileAux(p rules.Pattern) (*auxPattern, error) {
	opt := regexp2.None
	if p.IgnoreCase {
		opt = regexp2.IgnoreCase
	}
	find, err := regexp2.Compile(p.Expr, opt)
	if err != nil {
		return nil, err
	}
	full, err := regexp2.Compile(`\A(?:`+p.Expr+`)\z`, opt)
	if err != nil {
		return nil, err
	}
	if r.matchTimeout > 0 {
		find.MatchTimeout = r.matchTimeout
		full.MatchTimeout = r.matchTimeout
	}
	return &auxPattern{find: find, full: full}, nil
}

// Locale returns the resolved locale
func (r *Repository) Locale() string { return r.locale }

// UniverseRules returns the locale-independent rules
func (r *Repository) UniverseRules() map[string]string { return maps.Clone(r.universeRules) }

// LocaleRules returns the primary locale's rules
func (r *Repository) LocaleRules() map[string]string { return maps.Clone(r.localeRules) }

// LocaleRulesBackup returns the backup locale's rules
func (r *Repository) LocaleRulesBackup() map[string]string { return maps.Clone(r.localeRulesBackup) }

// SubRules returns the literal sub-rule substitutions
func (r *Repository) SubRules() map[string]string { return maps.Clone(r.subRules) }

// FilterRules returns the exclusion ("clear") rules
func (r *Repository) FilterRules() map[string]string { return maps.Clone(r.filterRules) }

// PastRules returns the cancellation ("past") rules
func (r *Repository) PastRules() map[string]string { return maps.Clone(r.pastRules) }

// Param returns the locale parameter table
func (r *Repository) Param() map[string]string { return maps.Clone(r.param) }

// ParamBackup returns the backup locale parameter table
func (r *Repository) ParamBackup() map[string]string { return maps.Clone(r.paramBackup) }

// SubRulesMap returns the nested rule groups keyed by parent rule id
func (r *Repository) SubRulesMap() map[string]map[string]string {
	out := make(map[string]map[string]string, len(r.subRulesMap))
	for group, set := range r.subRulesMap {
		out[group] = maps.Clone(set)
	}
	return out
}

// HasPattern reports whether the named auxiliary pattern compiled
func (r *Repository) HasPattern(name string) bool {
	_, ok := r.patterns[name]
	return ok
}

func (r *Repository) pattern(name string) *auxPattern {
	return r.patterns[name]
}

// Get resolves key in table into a regex alternation with each alternative
// wrapped in the locale's boundary marker.
func (r *Repository) Get(table map[string]string, key string) string {
	value, ok := table[key]
	if !ok {
		return ""
	}

	mark := defaultBoundary
	if d, ok := r.delimiter[r.locale]; ok {
		mark = d
	}

	var sb strings.Builder
	for _, alt := range strings.Split(value, "|") {
		if alt == "" {
			continue
		}
		if !strings.HasPrefix(alt, defaultBoundary) {
			sb.WriteString(mark)
		}
		sb.WriteString(alt)
		if !strings.HasSuffix(alt, defaultBoundary) && !strings.HasSuffix(alt, ".") {
			sb.WriteString(mark)
		}
		sb.WriteString("|")
	}
	return strings.TrimSuffix(sb.String(), "|")
}

// Level returns the specificity of a rule: a band base plus its override
func (r *Repository) Level(id RuleID) int {
	key, _ := id.Int()

	base := baseLevelHigh
	switch {
	case key >= dateTimeRuleLower && key < dateRuleLower:
		base = baseLevelLow
	case key >= dateRuleLower && key < periodRuleLower:
		base = baseLevelMid
	}

	add := defaultLevel
	if level, ok := r.levels[id]; ok {
		add = level
	}
	return base + add
}

// CompareLevel returns 1 when a outranks b, -1 when b outranks a, else 0
func (r *Repository) CompareLevel(a, b RuleID) int {
	la, lb := r.Level(a), r.Level(b)
	switch {
	case la > lb:
		return 1
	case la < lb:
		return -1
	}
	return 0
}

// IsRelativeDateJoiner reports whether text may join two date expressions:
// it is blank, or a comma the locale accepts as a joiner.
func (r *Repository) IsRelativeDateJoiner(text, locale string) bool {
	trimmed := trimSpace(text)
	if trimmed == "" {
		return true
	}
	return trimmed == "," && strings.Contains(r.relDates[locale], ",")
}

func trimSpace(s string) string {
	return strings.TrimFunc(s, unicode.IsSpace)
}
