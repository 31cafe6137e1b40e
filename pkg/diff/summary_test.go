package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		changes []string
		want    string
	}{
		{"empty", nil, "No changes detected"},
		{"single", []string{"Content modified"}, "Content modified"},
		{
			"two",
			[]string{"Length changed from 8 to 17 characters", "Content modified"},
			"2 changes: Length changed from 8 to 17 characters, Content modified",
		},
		{
			"three",
			[]string{"Added fields: c", "Removed fields: a", "Modified field: b"},
			"3 changes: Added fields: c, Removed fields: a...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.changes))
		})
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize(map[string]any{
		"count": 3,
		"tags":  []string{"a", "b"},
		"meta":  map[string]string{"k": "v"},
		"ok":    true,
		"none":  nil,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"count": 3.0,
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"k": "v"},
		"ok":    true,
		"none":  nil,
	}, got)

	s, err := Normalize("Book Now")
	require.NoError(t, err)
	assert.Equal(t, "Book Now", s)
}

func TestNormalizeRejectsNonJSON(t *testing.T) {
	_, err := Normalize(struct{ A int }{A: 1})
	assert.Error(t, err)

	_, err = Normalize(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
