package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidates(t *testing.T) {
	tests := []struct {
		locale string
		want   []string
	}{
		{"en", []string{"en"}},
		{"en_US", []string{"en_US", "en-US", "en"}},
		{"en-US", []string{"en-US", "en_US", "en"}},
		{"EN", []string{"EN", "en"}},
		{" fr ", []string{"fr"}},
		{"not a locale!", []string{"not a locale!"}},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			assert.Equal(t, tt.want, Candidates(tt.locale))
		})
	}

	t.Run("Empty", func(t *testing.T) {
		assert.Nil(t, Candidates(""))
		assert.Nil(t, Candidates("   "))
	})
}
