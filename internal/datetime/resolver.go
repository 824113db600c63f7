package datetime

import (
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/raaihank/chrono-sentinel/internal/rules"
)

// pastDirectionThreshold splits past rules into those written before the
// cancelled match (below) and those written after it
const pastDirectionThreshold = 200

const (
	commaASCII    = ","
	commaFullWide = "，"
)

type chainStatus int

const (
	chainNone chainStatus = iota
	chainTwo
	chainAll
)

// Resolver reconciles raw matches into the final span list
type Resolver struct {
	repo   *Repository
	logger *zap.Logger
}

// NewResolver creates a resolver ranking rules with repo
func NewResolver(repo *Repository, logger *zap.Logger) *Resolver {
	return &Resolver{repo: repo, logger: logger}
}

// Resolve removes overlaps, merges composite spans, then drops matches
// covered by clear matches and matches cancelled by past matches.
// matches must already be classified.
func (r *Resolver) Resolve(text []rune, matches, clear, past []Match) []Match {
	out := r.ResolveOverlaps(matches)
	out = r.MergeComposites(text, out)
	out = FilterCleared(out, clear)
	return FilterPast(out, past)
}

// ResolveOverlaps keeps the highest-level match of every overlapping group
// and returns the survivors sorted by begin
func (r *Resolver) ResolveOverlaps(matches []Match) []Match {
	accepted := make([]Match, 0, len(matches))
	for _, cand := range matches {
		valid := true
		for i := 0; i < len(accepted); {
			acc := accepted[i]
			if !overlaps(acc, cand) {
				i++
				continue
			}
			if r.outranks(acc, cand) {
				valid = false
				break
			}
			accepted = slices.Delete(accepted, i, i+1)
		}
		if valid {
			accepted = append(accepted, cand)
		}
	}

	return dropContained(accepted)
}

// outranks reports whether the accepted match a beats the candidate b
func (r *Resolver) outranks(a, b Match) bool {
	if cmp := r.repo.CompareLevel(a.RuleID, b.RuleID); cmp != 0 {
		return cmp > 0
	}
	return !strictlyContains(b, a)
}

func overlaps(a, b Match) bool {
	return a.Begin < b.End && b.Begin < a.End
}

func strictlyContains(outer, inner Match) bool {
	return outer.Begin <= inner.Begin && inner.End <= outer.End &&
		(outer.Begin != inner.Begin || outer.End != inner.End)
}

// dropContained removes matches inside another match, keeping the container,
// and sorts the rest by begin
func dropContained(matches []Match) []Match {
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		keep := true
		for i := 0; i < len(out); {
			acc := out[i]
			if (acc.Begin > m.Begin && acc.End <= m.End) || (acc.Begin == m.Begin && acc.End < m.End) {
				out = slices.Delete(out, i, i+1)
				continue
			}
			if acc.Begin <= m.Begin && acc.End >= m.End {
				keep = false
				break
			}
			i++
		}
		if keep {
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Begin < out[j].Begin })
	return out
}

// MergeComposites joins adjacent matches into date chains, date-times,
// periods, and comma-joined date-times, in that order. matches must be
// sorted and non-overlapping.
func (r *Resolver) MergeComposites(text []rune, matches []Match) []Match {
	out := r.mergeDates(text, matches)
	out = r.mergeDateTimes(text, out)
	out = r.mergePeriods(text, out)
	return r.mergeDateTimePunctuation(text, out)
}

// mergeDates folds chains of two or three differently-typed date matches
// into one date. Every date-like match comes out typed as a plain date.
func (r *Resolver) mergeDates(text []rune, matches []Match) []Match {
	out := make([]Match, 0, len(matches))
	for i := 0; i < len(matches); {
		cur := matches[i]
		if !cur.Type.dateLike() {
			out = append(out, cur)
			i++
			continue
		}

		rest := matches[i+1 : min(i+3, len(matches))]
		merged := cur
		merged.Type = TypeDate

		switch r.chainDates(text, cur, rest, cur.Type) {
		case chainAll:
			i += 3
			merged.End = closingBracketEnd(text, cur, rest[1], nextBegin(text, matches, i))
		case chainTwo:
			i += 2
			merged.End = closingBracketEnd(text, cur, rest[0], nextBegin(text, matches, i))
		default:
			i++
		}
		out = append(out, merged)
	}
	return out
}

// chainDates reports how many of cur and rest form one date expression
func (r *Resolver) chainDates(text []rune, cur Match, rest []Match, preType MatchType) chainStatus {
	if len(rest) == 0 {
		return chainNone
	}
	next := rest[0]
	if !next.Type.dateLike() || next.Type == cur.Type || next.Type == preType {
		return chainNone
	}
	if next.Begin < cur.End {
		return chainNone
	}

	gap := between(text, cur.End, next.Begin)
	relative := r.repo.IsRelativeDateJoiner(gap, r.repo.Locale())
	if !relative && trimSpace(gap) != "(" {
		return chainNone
	}

	three := r.chainDates(text, next, rest[1:], cur.Type) != chainNone
	if !relative {
		last := next
		if three {
			last = rest[1]
		}
		if !r.bracketEncloses(text, cur.End, next.Begin, last.End) {
			return chainNone
		}
	}

	if three {
		return chainAll
	}
	return chainTwo
}

// bracketEncloses reports whether the parenthesis opened after from wraps
// exactly text[begin:end]
func (r *Resolver) bracketEncloses(text []rune, from, begin, end int) bool {
	p := r.repo.pattern(rules.PatternBrackets)
	if p == nil {
		return false
	}
	m, err := p.find.FindRunesMatch(text[from:])
	if err != nil || m == nil {
		return false
	}
	inner := trimSpace(groupString(m, 1))
	return inner != "" && inner == trimSpace(between(text, begin, end))
}

// nextBegin is the start of matches[i], or the end of text past the last one
func nextBegin(text []rune, matches []Match, i int) int {
	if i < len(matches) {
		return matches[i].Begin
	}
	return len(text)
}

// closingBracketEnd extends a merged date through the ")" closing a
// parenthesis opened between first and last. The extension never reaches
// past limit, the start of the following match.
func closingBracketEnd(text []rune, first, last Match, limit int) int {
	if first.End > last.Begin || !slices.Contains(text[first.End:last.Begin], '(') {
		return last.End
	}
	idx := slices.Index(text[last.End:], ')')
	if idx < 0 {
		return last.End
	}
	end := last.End + idx + 1
	if end > limit || trimSpace(between(text, last.End, end)) != ")" {
		return last.End
	}
	return end
}

// between returns text[from:to], or "" when the bounds cross
func between(text []rune, from, to int) string {
	if from >= to {
		return ""
	}
	return string(text[from:to])
}

// dateTimePair reports whether a date and a time (or a time-only period)
// are adjacent in either order
func dateTimePair(left, right Match) bool {
	timeLike := func(m Match) bool {
		return m.Type == TypeTime || (m.Type == TypeTimePeriod && m.IsTimePeriod)
	}
	return (left.Type == TypeDate && timeLike(right)) || (timeLike(left) && right.Type == TypeDate)
}

// mergeDateTimes joins date/time pairs separated by nothing or by the
// "datetime" joiner, falling back to parenthesised forms
func (r *Resolver) mergeDateTimes(text []rune, matches []Match) []Match {
	p := r.repo.pattern(rules.PatternDateTime)
	if p == nil {
		r.logger.Debug("Date-time joiner pattern missing, skipping date-time merge")
		return matches
	}

	for i := 1; i < len(matches); {
		last, cur := &matches[i-1], matches[i]
		if !dateTimePair(*last, cur) || cur.Begin < last.End {
			i++
			continue
		}

		gap := between(text, last.End, cur.Begin)
		if trimSpace(gap) == "" || fullMatch(p, gap) {
			last.Type = joinedType(*last, cur)
			last.End = cur.End
			matches = slices.Delete(matches, i, i+1)
			continue
		}
		if r.adoptBrackets(text, last, cur) {
			matches = slices.Delete(matches, i, i+1)
			continue
		}
		i++
	}
	return matches
}

// joinedType is date-time for a date and a time, else a time period
func joinedType(left, right Match) MatchType {
	if (left.Type == TypeDate || left.Type == TypeTime) && (right.Type == TypeDate || right.Type == TypeTime) {
		return TypeDateTime
	}
	return TypeTimePeriod
}

// adoptBrackets merges "10pm (March 3)" and "(March 3) 10pm" forms into last
func (r *Resolver) adoptBrackets(text []rune, last *Match, cur Match) bool {
	if last.Type == TypeTime {
		p := r.repo.pattern(rules.PatternBrackets)
		if p == nil {
			return false
		}
		m, err := p.find.FindRunesMatch(text[last.End:])
		if err != nil || m == nil {
			return false
		}
		inner := trimSpace(groupString(m, 1))
		if inner == "" || inner != trimSpace(string(text[cur.Begin:cur.End])) {
			return false
		}
		last.End += m.Length
		last.Type = TypeDateTime
		return true
	}

	if last.Type == TypeDate && cur.Type == TypeTime {
		before := []rune(trimSpace(string(text[:last.Begin])))
		if len(before) == 0 || before[len(before)-1] != '(' {
			return false
		}
		if trimSpace(between(text, last.End, cur.Begin)) != ")" {
			return false
		}
		last.Begin = lastIndexRune(text[:last.Begin], '(')
		last.End = cur.End
		last.Type = TypeDateTime
		return true
	}
	return false
}

func lastIndexRune(text []rune, r rune) int {
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == r {
			return i
		}
	}
	return -1
}

// periodPair reports whether two matches can bound a period
func periodPair(left, right Match) bool {
	switch left.Type {
	case TypeDate, TypeTime:
		return right.Type == left.Type
	case TypeDateTime:
		return right.Type == TypeDateTime || right.Type == TypeTime
	}
	return false
}

// mergePeriods joins two bounds separated by the "period" joiner into a time
// period
func (r *Resolver) mergePeriods(text []rune, matches []Match) []Match {
	p := r.repo.pattern(rules.PatternPeriod)
	if p == nil {
		r.logger.Debug("Period joiner pattern missing, skipping period merge")
		return matches
	}

	for i := 1; i < len(matches); {
		last, cur := &matches[i-1], matches[i]
		if !periodPair(*last, cur) || cur.Begin < last.End || !fullMatch(p, between(text, last.End, cur.Begin)) {
			i++
			continue
		}
		last.IsTimePeriod = last.Type == TypeTime
		last.Type = TypeTimePeriod
		last.End = cur.End
		matches = slices.Delete(matches, i, i+1)
	}
	return matches
}

// mergeDateTimePunctuation joins date/time pairs separated by a comma
func (r *Resolver) mergeDateTimePunctuation(text []rune, matches []Match) []Match {
	for i := 1; i < len(matches); {
		last, cur := &matches[i-1], matches[i]
		if !dateTimePair(*last, cur) || cur.Begin < last.End {
			i++
			continue
		}
		gap := trimSpace(between(text, last.End, cur.Begin))
		if gap != commaASCII && gap != commaFullWide {
			i++
			continue
		}

		if (last.Type == TypeDate && cur.Type == TypeTime) || last.Type == TypeTime {
			last.Type = TypeDateTime
		} else {
			last.Type = TypeTimePeriod
		}
		last.End = cur.End
		matches = slices.Delete(matches, i, i+1)
	}
	return matches
}

// FilterCleared drops every match lying entirely inside a clear match
func FilterCleared(matches, clear []Match) []Match {
	if len(clear) == 0 {
		return matches
	}
	return slices.DeleteFunc(matches, func(m Match) bool {
		for _, c := range clear {
			if c.Begin <= m.Begin && m.End <= c.End {
				return true
			}
		}
		return false
	})
}

// FilterPast drops, for every past match, the first match it cancels: the
// one starting where the past match ends for ids below the direction
// threshold, or the one ending where it begins otherwise
func FilterPast(matches, past []Match) []Match {
	for _, p := range past {
		key, _ := p.RuleID.Int()
		idx := slices.IndexFunc(matches, func(m Match) bool {
			if key < pastDirectionThreshold {
				return p.End == m.Begin
			}
			return p.Begin == m.End
		})
		if idx >= 0 {
			matches = slices.Delete(matches, idx, idx+1)
		}
	}
	return matches
}

func fullMatch(p *auxPattern, s string) bool {
	ok, err := p.full.MatchString(s)
	return err == nil && ok
}
