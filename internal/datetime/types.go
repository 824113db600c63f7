// Package datetime recognizes date, time, date-time and period expressions in
// locale-tagged text.
//
// Rules are regular-expression templates loaded per locale. A Repository
// holds the loaded tables, Engines compile and scan one rule subset each, a
// Recognizer drives the engines over a text, and a Resolver reconciles the
// raw matches into the final, non-overlapping spans. Registry caches one
// Recognizer per locale and is the entry point for callers.
//
// Offsets are Unicode code point indices into the scanned text. All compiled
// state is immutable after construction and safe for concurrent use.
package datetime

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RuleID identifies a rule. Its numeric value selects the type and level bands.
type RuleID string

// Int returns the numeric value of the id
func (id RuleID) Int() (int, bool) {
	n, err := strconv.Atoi(string(id))
	if err != nil {
		return 0, false
	}
	return n, true
}

// MatchType is the coarse classification of a match
type MatchType int

const (
	TypeNone MatchType = iota
	TypeDateTime
	TypeDate
	TypeTime
	TypeTimePeriod
	TypePeriod
	TypeToday
	TypeWeek
)

var matchTypeNames = [...]string{
	TypeNone:       "none",
	TypeDateTime:   "datetime",
	TypeDate:       "date",
	TypeTime:       "time",
	TypeTimePeriod: "time_period",
	TypePeriod:     "period",
	TypeToday:      "today",
	TypeWeek:       "week",
}

// String returns the name of the match type
func (t MatchType) String() string {
	if int(t) >= 0 && int(t) < len(matchTypeNames) {
		return matchTypeNames[t]
	}
	return fmt.Sprintf("MatchType(%d)", int(t))
}

// MarshalJSON encodes the type as its name
func (t MatchType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a type name
func (t *MatchType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, name := range matchTypeNames {
		if name == s {
			*t = MatchType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown match type: %q", s)
}

// dateLike reports whether t is one of the date classifications
func (t MatchType) dateLike() bool {
	return t == TypeDate || t == TypeToday || t == TypeWeek
}

// Match is one recognized span [Begin, End)
type Match struct {
	Begin        int       `json:"begin"`
	End          int       `json:"end"`
	RuleID       RuleID    `json:"rule_id"`
	Type         MatchType `json:"type"`
	IsTimePeriod bool      `json:"is_time_period,omitempty"`
}

// String returns a debug representation, e.g. date[0:7]#20001
func (m Match) String() string {
	return fmt.Sprintf("%s[%d:%d]#%s", m.Type, m.Begin, m.End, m.RuleID)
}

// Type bands of rule ids
const (
	dateTimeRuleLower = 10000
	dateRuleLower     = 20000
	timeRuleLower     = 30000
	periodRuleLower   = 40000

	ruleWeek1 = 20009
	ruleWeek2 = 20011
	ruleWeek3 = 21026
	ruleToday = 20010
)

// Classify derives the match type of a rule id
func Classify(id RuleID) MatchType {
	key, ok := id.Int()
	if !ok {
		return TypeNone
	}
	switch {
	case key >= dateRuleLower && key < timeRuleLower:
		switch key {
		case ruleWeek1, ruleWeek2, ruleWeek3:
			return TypeWeek
		case ruleToday:
			return TypeToday
		}
		return TypeDate
	case key >= timeRuleLower && key < periodRuleLower:
		return TypeTime
	case key >= dateTimeRuleLower && key < dateRuleLower:
		return TypeDateTime
	default:
		return TypeTimePeriod
	}
}

// Offsets flattens matches into [count, begin0, end0, begin1, end1, ...]
func Offsets(matches []Match) []int32 {
	out := make([]int32, 0, 1+2*len(matches))
	out = append(out, int32(len(matches)))
	for _, m := range matches {
		out = append(out, int32(m.Begin), int32(m.End))
	}
	return out
}
