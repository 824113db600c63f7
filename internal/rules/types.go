package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// CommonDocument is the name of the document loaded before any locale.
const CommonDocument = "common"

// Auxiliary pattern names used by the compiler and the composite merger.
const (
	PatternRules    = "rules"
	PatternOptRules = "optrules"
	PatternSubRules = "subrules"
	PatternDateTime = "datetime"
	PatternPeriod   = "period"
	PatternBrackets = "brackets"
)

// Pattern is an auxiliary regular expression shipped with a rule document
type Pattern struct {
	Expr       string `yaml:"expr" json:"expr"`
	IgnoreCase bool   `yaml:"ignore_case" json:"ignore_case"`
}

// Document is one rule configuration unit: the common document or a locale.
// Every table is optional; a missing table means "no rules of that kind".
type Document struct {
	SubRules      map[string]string            `yaml:"sub_rules,omitempty" json:"sub_rules,omitempty"`
	UniverseRules map[string]string            `yaml:"universe_rules,omitempty" json:"universe_rules,omitempty"`
	LocaleRules   map[string]string            `yaml:"locale_rules,omitempty" json:"locale_rules,omitempty"`
	FilterRules   map[string]string            `yaml:"filter_rules,omitempty" json:"filter_rules,omitempty"`
	PastRules     map[string]string            `yaml:"past_rules,omitempty" json:"past_rules,omitempty"`
	SubRulesMap   map[string]map[string]string `yaml:"sub_rules_map,omitempty" json:"sub_rules_map,omitempty"`
	Param         map[string]string            `yaml:"param,omitempty" json:"param,omitempty"`
	Delimiter     map[string]string            `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`
	DefaultLocale map[string]string            `yaml:"default_locale,omitempty" json:"default_locale,omitempty"`
	RelDates      map[string]string            `yaml:"rel_dates,omitempty" json:"rel_dates,omitempty"`
	Levels        map[string]int               `yaml:"levels,omitempty" json:"levels,omitempty"`
	Patterns      map[string]Pattern           `yaml:"patterns,omitempty" json:"patterns,omitempty"`
}

// Parse decodes a YAML rule document
func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse rule document: %w", err)
	}
	return doc, nil
}

// Marshal encodes the document as YAML
func (d *Document) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Merge overlays other onto d key by key. Values from other win.
func (d *Document) Merge(other *Document) {
	if other == nil {
		return
	}
	d.SubRules = mergeStrings(d.SubRules, other.SubRules)
	d.UniverseRules = mergeStrings(d.UniverseRules, other.UniverseRules)
	d.LocaleRules = mergeStrings(d.LocaleRules, other.LocaleRules)
	d.FilterRules = mergeStrings(d.FilterRules, other.FilterRules)
	d.PastRules = mergeStrings(d.PastRules, other.PastRules)
	d.Param = mergeStrings(d.Param, other.Param)
	d.Delimiter = mergeStrings(d.Delimiter, other.Delimiter)
	d.DefaultLocale = mergeStrings(d.DefaultLocale, other.DefaultLocale)
	d.RelDates = mergeStrings(d.RelDates, other.RelDates)

	for group, set := range other.SubRulesMap {
		if d.SubRulesMap == nil {
			d.SubRulesMap = make(map[string]map[string]string)
		}
		d.SubRulesMap[group] = mergeStrings(d.SubRulesMap[group], set)
	}
	for k, v := range other.Levels {
		if d.Levels == nil {
			d.Levels = make(map[string]int)
		}
		d.Levels[k] = v
	}
	for k, v := range other.Patterns {
		if d.Patterns == nil {
			d.Patterns = make(map[string]Pattern)
		}
		d.Patterns[k] = v
	}
}

func mergeStrings(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
