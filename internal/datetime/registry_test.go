package datetime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/chrono-sentinel/internal/rules"
)

func TestRegistryDetect(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testSource(), zap.NewNop())

	t.Run("EmptyText", func(t *testing.T) {
		out := reg.Detect(ctx, "en", "")
		require.NotNil(t, out)
		assert.Empty(t, out)
		assert.Equal(t, []int32{0}, reg.DetectOffsets(ctx, "en", ""))
		assert.Empty(t, reg.Locales())
	})

	t.Run("Scenario", func(t *testing.T) {
		out := reg.Detect(ctx, "en", "March 3 at 10pm")
		require.Len(t, out, 1)
		assert.Equal(t, 0, out[0].Begin)
		assert.Equal(t, 15, out[0].End)
		assert.Equal(t, TypeDateTime, out[0].Type)
	})

	t.Run("OffsetsMatchStructured", func(t *testing.T) {
		texts := []string{
			"Monday March 3 at 10pm and 10am to 11pm",
			"nothing here",
			"on 3/4-3/5 or March 9",
		}
		for _, text := range texts {
			matches := reg.Detect(ctx, "en", text)
			offsets := reg.DetectOffsets(ctx, "en", text)

			require.Equal(t, int32(len(matches)), offsets[0], text)
			require.Len(t, offsets, 1+2*len(matches), text)
			for i, m := range matches {
				assert.Equal(t, int32(m.Begin), offsets[1+2*i], text)
				assert.Equal(t, int32(m.End), offsets[2+2*i], text)
			}
		}
	})

	t.Run("CachedPerLocale", func(t *testing.T) {
		a := reg.Recognizer(ctx, "en")
		b := reg.Recognizer(ctx, "en")
		assert.Same(t, a, b)
		assert.Contains(t, reg.Locales(), "en")
	})
}

func TestRegistryLocaleFallback(t *testing.T) {
	ctx := context.Background()
	common := commonDocument()
	common.DefaultLocale = nil
	src := rules.NewMemorySource(map[string]*rules.Document{
		rules.CommonDocument: common,
		"en":                 englishDocument(),
	})
	reg := NewRegistry(src, zap.NewNop())

	assert.NotPanics(t, func() {
		out := reg.Detect(ctx, "fr", "March 3 at 10pm")
		assert.Equal(t, [][3]int{{11, 15, int(TypeTime)}}, spans(out))
	})

	out := reg.Detect(ctx, "en-GB", "March 3 at 10pm")
	assert.Equal(t, [][3]int{{0, 15, int(TypeDateTime)}}, spans(out))
	assert.Equal(t, []string{"en-GB", "fr"}, reg.Locales())
}

func TestRegistryReset(t *testing.T) {
	ctx := context.Background()
	src := testSource()
	reg := NewRegistry(src, zap.NewNop())

	before := reg.Recognizer(ctx, "en")
	assert.Equal(t, uint64(0), reg.Generation())

	en := englishDocument()
	en.LocaleRules["20002"] = `\bsoon\b`
	src.Put("en", en)
	assert.Empty(t, reg.Detect(ctx, "en", "soon"))

	reg.Reset()
	assert.Equal(t, uint64(1), reg.Generation())
	assert.Empty(t, reg.Locales())

	after := reg.Recognizer(ctx, "en")
	assert.NotSame(t, before, after)
	assert.Equal(t, [][3]int{{0, 4, int(TypeDate)}}, spans(reg.Detect(ctx, "en", "soon")))
}

func TestRegistryConcurrentDetect(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testSource(), zap.NewNop())
	want := spans(testRecognizer(t).Recognize("Monday March 3 at 10pm"))

	var wg sync.WaitGroup
	results := make([][][3]int, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = spans(reg.Detect(ctx, "en", "Monday March 3 at 10pm"))
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
	assert.Equal(t, []string{"en"}, reg.Locales())
}

func TestRegistryCancelledContext(t *testing.T) {
	want := [][3]int{{0, 15, int(TypeDateTime)}}

	t.Run("Cancelled", func(t *testing.T) {
		reg := NewRegistry(testSource(), zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Equal(t, want, spans(reg.Detect(ctx, "en", "March 3 at 10pm")))
		assert.Equal(t, want, spans(reg.Detect(context.Background(), "en", "March 3 at 10pm")))
	})

	t.Run("DeadlineExceeded", func(t *testing.T) {
		reg := NewRegistry(testSource(), zap.NewNop())
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		reg.Recognizer(ctx, "en")
		assert.Equal(t, want, spans(reg.Detect(context.Background(), "en", "March 3 at 10pm")))
	})
}

func TestRegistryResetDuringDetect(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testSource(), zap.NewNop())
	want := spans(testRecognizer(t).Recognize("Monday March 3 at 10pm"))

	const resets = 20
	var wg sync.WaitGroup
	results := make([][][3]int, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = spans(reg.Detect(ctx, "en", "Monday March 3 at 10pm"))
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < resets; i++ {
			reg.Reset()
		}
	}()
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
	assert.Equal(t, uint64(resets), reg.Generation())
	assert.Equal(t, want, spans(reg.Detect(ctx, "en", "Monday March 3 at 10pm")))
	assert.Equal(t, []string{"en"}, reg.Locales())
}

func TestRegistryBracketChainBeforeTime(t *testing.T) {
	en := englishDocument()
	en.LocaleRules["30009"] = `\)\s*\d{1,2}pm`
	reg := NewRegistry(rules.NewMemorySource(map[string]*rules.Document{
		rules.CommonDocument: commonDocument(),
		"en":                 en,
	}), zap.NewNop())

	var out []Match
	require.NotPanics(t, func() {
		out = reg.Detect(context.Background(), "en", "Monday (March 3 ) 10pm")
	})
	assert.Equal(t, [][3]int{{0, 22, int(TypeDateTime)}}, spans(out))
}
