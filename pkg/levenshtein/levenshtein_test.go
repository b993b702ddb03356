package levenshtein_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mapset-verifier/server/pkg/levenshtein"
)

func TestDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"Missing audio file.", "missing audio file.", 0},
		{"Missing audio file.", "Missing audio file", 1},
		{"héllo", "hello", 1},
	}

	var m levenshtein.Matcher

	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Distance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
		assert.Equal(t, tt.want, m.Distance(tt.b, tt.a), "%q vs %q", tt.b, tt.a)
	}
}

func TestClosest(t *testing.T) {
	t.Parallel()

	candidates := []string{"Missing audio file.", "Missing background image.", "Drain time too short."}

	got, ok := levenshtein.Closest("Missing audio fle", candidates)
	assert.True(t, ok)
	assert.Equal(t, "Missing audio file.", got)

	got, ok = levenshtein.Closest("drain time too short", candidates)
	assert.True(t, ok)
	assert.Equal(t, "Drain time too short.", got)

	_, ok = levenshtein.Closest("<nope>", candidates)
	assert.False(t, ok)

	_, ok = levenshtein.Closest("anything", nil)
	assert.False(t, ok)
}
