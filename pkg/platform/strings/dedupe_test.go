package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{name: "keeps first-seen order", input: []string{"verify", "apply", "verify"}, expected: []string{"verify", "apply"}},
		{name: "trims before comparing", input: []string{" apply", "apply ", "\tapply"}, expected: []string{"apply"}},
		{name: "drops blanks", input: []string{"", "  ", "crm-registration"}, expected: []string{"crm-registration"}},
		{name: "case is significant", input: []string{"Apply", "apply"}, expected: []string{"Apply", "apply"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
