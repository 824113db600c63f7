package datetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/chrono-sentinel/internal/rules"
)

func TestEngineCompile(t *testing.T) {
	repo := testRepository(t)
	e := NewEngine("test", repo, RuleSet{
		Rules: map[string]string{
			"20001": `(?:[param_month])\s+\d{1,2}\b`,
			"20002": `(?:[param_missing])`,
			"20003": `(unclosed`,
			"20004": `   `,
		},
		Param: repo.Param(),
	}, zap.NewNop())

	assert.Equal(t, "test", e.Name())
	require.Equal(t, 1, e.Len())
	assert.Contains(t, e.Sources()["20001"], `\bMarch\b`)
}

func TestEngineScan(t *testing.T) {
	repo := newRepository("en", &rules.Document{}, nil, options{}, zap.NewNop())

	t.Run("AllMatchesPerRule", func(t *testing.T) {
		e := NewEngine("digits", repo, RuleSet{Rules: map[string]string{"30001": `\d+`}}, zap.NewNop())
		got := e.Scan([]rune("1 and 22 and 333"))
		assert.Equal(t, []Match{
			{Begin: 0, End: 1, RuleID: "30001"},
			{Begin: 6, End: 8, RuleID: "30001"},
			{Begin: 13, End: 16, RuleID: "30001"},
		}, got)
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		e := NewEngine("words", repo, RuleSet{Rules: map[string]string{"20001": `march`}}, zap.NewNop())
		assert.Len(t, e.Scan([]rune("MARCH March march")), 3)
	})

	t.Run("RuneOffsets", func(t *testing.T) {
		e := NewEngine("digits", repo, RuleSet{Rules: map[string]string{"30001": `\d+`}}, zap.NewNop())
		got := e.Scan([]rune("日本 12"))
		require.Len(t, got, 1)
		assert.Equal(t, 3, got[0].Begin)
		assert.Equal(t, 5, got[0].End)
	})

	t.Run("ZeroLengthDropped", func(t *testing.T) {
		e := NewEngine("empty", repo, RuleSet{Rules: map[string]string{"30001": `x*`}}, zap.NewNop())
		assert.Empty(t, e.Scan([]rune("abc")))
	})

	t.Run("ZeroLengthDroppedAmongMatches", func(t *testing.T) {
		e := NewEngine("optional", repo, RuleSet{Rules: map[string]string{"30001": `x*`}}, zap.NewNop())
		assert.Equal(t, []Match{
			{Begin: 1, End: 3, RuleID: "30001"},
			{Begin: 4, End: 5, RuleID: "30001"},
		}, e.Scan([]rune("axxbx")))
	})

	t.Run("EmptyText", func(t *testing.T) {
		e := NewEngine("digits", repo, RuleSet{Rules: map[string]string{"30001": `\d+`}}, zap.NewNop())
		assert.Empty(t, e.Scan(nil))
	})

	t.Run("NoRules", func(t *testing.T) {
		e := NewEngine("none", repo, RuleSet{}, zap.NewNop())
		assert.Equal(t, 0, e.Len())
		assert.Empty(t, e.Scan([]rune("March 3")))
	})

	t.Run("MatchTimeout", func(t *testing.T) {
		slow := newRepository("en", &rules.Document{}, nil, options{matchTimeout: time.Nanosecond}, zap.NewNop())
		e := NewEngine("slow", slow, RuleSet{Rules: map[string]string{"30001": `(a+)+b`}}, zap.NewNop())
		assert.NotPanics(t, func() {
			e.Scan([]rune("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaac"))
		})
	})
}
