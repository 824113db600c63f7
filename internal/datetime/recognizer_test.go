package datetime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/chrono-sentinel/internal/rules"
)

func TestRecognize(t *testing.T) {
	rec := testRecognizer(t)

	tests := []struct {
		name string
		text string
		want [][3]int
	}{
		{"DateTime", "March 3 at 10pm", [][3]int{{0, 15, int(TypeDateTime)}}},
		{"DatePeriod", "March 3 - March 5", [][3]int{{0, 17, int(TypeTimePeriod)}}},
		{"TimePeriod", "10am to 11pm", [][3]int{{0, 12, int(TypeTimePeriod)}}},
		{"WeekdayDate", "Monday March 3", [][3]int{{0, 14, int(TypeDate)}}},
		{"ThreeWayDate", "today, Monday March 3", [][3]int{{0, 21, int(TypeDate)}}},
		{"BracketedDate", "Monday (March 3)", [][3]int{{0, 16, int(TypeDate)}}},
		{"ChainThenTime", "Monday March 3 at 10pm", [][3]int{{0, 22, int(TypeDateTime)}}},
		{"NestedRule", "on 3/4-3/5", [][3]int{{3, 10, int(TypeTimePeriod)}}},
		{"Separate", "call me March 3 or 10pm", [][3]int{{8, 15, int(TypeDate)}, {19, 23, int(TypeTime)}}},
		{"Cleared", "March 3 Street", [][3]int{}},
		{"PastBefore", "not March 3", [][3]int{}},
		{"PastAfter", "March 3 ago", [][3]int{}},
		{"NoMatch", "nothing to see here", [][3]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, spans(rec.Recognize(tt.text)))
		})
	}
}

func TestRecognizeWellFormed(t *testing.T) {
	rec := testRecognizer(t)
	texts := []string{
		"On Monday March 3 at 10pm, then 10am to 11pm on March 5 - March 7.",
		"日本語 March 3 テキスト 10pm",
		"3/4-3/5 not today",
	}
	for _, text := range texts {
		n := len([]rune(text))
		out := rec.Recognize(text)
		for i, m := range out {
			assert.True(t, 0 <= m.Begin && m.Begin <= m.End && m.End <= n, "%v out of range", m)
			if i > 0 {
				assert.LessOrEqual(t, out[i-1].End, m.Begin, "%v overlaps %v", out[i-1], m)
			}
		}
	}
}

func TestRecognizeEmpty(t *testing.T) {
	rec := testRecognizer(t)
	out := rec.Recognize("")
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestExpandNested(t *testing.T) {
	rec := testRecognizer(t)
	text := []rune("on 3/4-3/5")

	got := rec.expand(text, Match{Begin: 3, End: 10, RuleID: "20050"}, nil)
	assert.Equal(t, []Match{
		{Begin: 3, End: 6, RuleID: "20051"},
		{Begin: 7, End: 10, RuleID: "20051"},
	}, got)

	plain := Match{Begin: 0, End: 2, RuleID: "20001"}
	assert.Equal(t, []Match{plain}, rec.expand(text, plain, nil))
}

func TestExpandStopsOnSameSpan(t *testing.T) {
	doc := commonDocument()
	doc.UniverseRules = map[string]string{"20060": `\d+`}
	doc.SubRulesMap = map[string]map[string]string{"20060": {"20060": `\d+`}}
	rec := NewRecognizer(newRepository("en", doc, nil, options{}, zap.NewNop()), zap.NewNop())

	got := rec.Recognize("room 42")
	assert.Equal(t, [][3]int{{5, 7, int(TypeDate)}}, spans(got))
}

func TestRecognizerBackupLocale(t *testing.T) {
	common := commonDocument()
	common.DefaultLocale = map[string]string{"locale": "en", "backup": "de"}
	src := rules.NewMemorySource(map[string]*rules.Document{
		rules.CommonDocument: common,
		"en":                 englishDocument(),
		"de": {
			Param:       map[string]string{"param_month": "März|Mai"},
			LocaleRules: map[string]string{"20002": `\d{1,2}\.\s*(?:[param_month])`},
		},
	})

	rec := NewRecognizer(NewRepository(context.Background(), src, "en", zap.NewNop()), zap.NewNop())
	assert.Equal(t, "en", rec.Locale())
	assert.Equal(t, [][3]int{{0, 7, int(TypeDate)}}, spans(rec.Recognize("3. März")))
	assert.Equal(t, [][3]int{{0, 7, int(TypeDate)}}, spans(rec.Recognize("March 3")))
}
