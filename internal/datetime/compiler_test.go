package datetime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/raaihank/chrono-sentinel/internal/rules"
)

func newTestCompiler(repo *Repository, subRules, param, backup map[string]string) *compiler {
	return &compiler{
		repo:        repo,
		subRules:    subRules,
		param:       param,
		paramBackup: backup,
		logger:      zap.NewNop(),
	}
}

func TestCompilerSubRules(t *testing.T) {
	repo := testRepository(t)

	t.Run("Inline", func(t *testing.T) {
		c := newTestCompiler(repo, map[string]string{"sub_sep": `[/.-]`}, nil, nil)
		got, ok := c.compile(`\d+[sub_sep]\d+[sub_sep]\d+`)
		assert.True(t, ok)
		assert.Equal(t, `\d+[/.-]\d+[/.-]\d+`, got)
	})

	t.Run("UnknownName", func(t *testing.T) {
		c := newTestCompiler(repo, map[string]string{"sub_sep": "-"}, nil, nil)
		got, ok := c.compile(`\d+[sub_none]\d+`)
		assert.True(t, ok)
		assert.Equal(t, `\d+\d+`, got)
	})

	t.Run("NoSubRules", func(t *testing.T) {
		c := newTestCompiler(repo, nil, nil, nil)
		got, ok := c.compile(`\d+[sub_sep]`)
		assert.True(t, ok)
		assert.Equal(t, `\d+[sub_sep]`, got)
	})
}

func TestCompilerOptionalFragments(t *testing.T) {
	repo := testRepository(t)

	tests := []struct {
		name   string
		param  map[string]string
		backup map[string]string
		want   string
	}{
		{
			name:  "Primary",
			param: map[string]string{"param_at": "um"},
			want:  `(?:at|\bum\b)\s+`,
		},
		{
			name:   "BackupOnly",
			param:  map[string]string{"param_other": "x"},
			backup: map[string]string{"param_at": "bei"},
			want:   `(?:at|\bbei\b)\s+`,
		},
		{
			name:   "Both",
			param:  map[string]string{"param_at": "um"},
			backup: map[string]string{"param_at": "bei"},
			want:   `(?:at|\bum\b|\bbei\b)\s+`,
		},
		{
			name:  "NeitherRemovesFragment",
			param: map[string]string{"param_other": "x"},
			want:  `(?:at)\s+`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCompiler(repo, nil, tt.param, tt.backup)
			got, ok := c.compile(`(?:at|[paramopt_at])\s+`)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompilerParameters(t *testing.T) {
	repo := testRepository(t)

	t.Run("Primary", func(t *testing.T) {
		c := newTestCompiler(repo, nil, map[string]string{"param_month": "March|May"}, nil)
		got, ok := c.compile(`(?:[param_month])\s+\d+`)
		assert.True(t, ok)
		assert.Equal(t, `(?:\bMarch\b|\bMay\b)\s+\d+`, got)
	})

	t.Run("PrimaryAndBackup", func(t *testing.T) {
		c := newTestCompiler(repo, nil,
			map[string]string{"param_month": "March"},
			map[string]string{"param_month": "März"})
		got, ok := c.compile(`(?:[param_month])`)
		assert.True(t, ok)
		assert.Equal(t, `(?:\bMarch\b|\bMärz\b)`, got)
	})

	t.Run("CharacterClassNotJoined", func(t *testing.T) {
		c := newTestCompiler(repo, nil,
			map[string]string{"param_digit": "[0-9]"},
			map[string]string{"param_digit": "[٠-٩]"})
		got, ok := c.compile(`[param_digit]+`)
		assert.True(t, ok)
		assert.Equal(t, `\b[0-9]\b+`, got)
	})

	t.Run("BackupOnly", func(t *testing.T) {
		c := newTestCompiler(repo, nil,
			map[string]string{"param_other": "x"},
			map[string]string{"param_month": "März"})
		got, ok := c.compile(`(?:[param_month])`)
		assert.True(t, ok)
		assert.Equal(t, `(?:\bMärz\b)`, got)
	})

	t.Run("MissingMarksInvalid", func(t *testing.T) {
		c := newTestCompiler(repo, nil, map[string]string{"param_other": "x"}, nil)
		_, ok := c.compile(`(?:[param_month])\s+\d+`)
		assert.False(t, ok)
	})

	t.Run("BlankTemplateInvalid", func(t *testing.T) {
		c := newTestCompiler(repo, nil, nil, nil)
		_, ok := c.compile("   ")
		assert.False(t, ok)
	})
}

func TestCompilerPassOrder(t *testing.T) {
	repo := testRepository(t)
	c := newTestCompiler(repo,
		map[string]string{"sub_month": "(?:[param_month])"},
		map[string]string{"param_month": "March", "param_on": "on"},
		nil)

	got, ok := c.compile(`(?:[paramopt_on])?\s*[sub_month]\s+\d+`)
	assert.True(t, ok)
	assert.Equal(t, `(?:\bon\b)?\s*(?:\bMarch\b)\s+\d+`, got)
}

func TestCompilerMissingAuxPatterns(t *testing.T) {
	repo := newRepository("en", &rules.Document{}, nil, options{}, zap.NewNop())
	c := newTestCompiler(repo,
		map[string]string{"sub_x": "x"},
		map[string]string{"param_month": "March"},
		nil)

	got, ok := c.compile(`[sub_x](?:[param_month])`)
	assert.True(t, ok)
	assert.Equal(t, `[sub_x](?:[param_month])`, got)
}
