package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuseRRF(t *testing.T) {
	tests := []struct {
		name  string
		lists [][]string
		want  []string
	}{
		{"empty", nil, nil},
		{"single list keeps order", [][]string{{"a", "b", "c"}}, []string{"a", "b", "c"}},
		{"shared id rises", [][]string{{"a", "b"}, {"b", "c"}}, []string{"b", "a", "c"}},
		{"tie keeps first seen", [][]string{{"a"}, {"b"}}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fuseRRF(tt.lists...))
		})
	}
}
