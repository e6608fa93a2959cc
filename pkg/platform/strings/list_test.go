package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "whitespace only", input: "  ", expected: nil},
		{name: "single", input: "pending", expected: []string{"pending"}},
		{name: "trims entries", input: " pending , errored ", expected: []string{"pending", "errored"}},
		{name: "drops empty entries", input: "pending,,errored,", expected: []string{"pending", "errored"}},
		{name: "dedupes keeping first position", input: "errored,pending,errored", expected: []string{"errored", "pending"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input))
		})
	}
}
