package shlex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
		hasError bool
	}{
		{
			name:     "plain words",
			input:    "verifier.exe --check input.nc",
			expected: []string{"verifier.exe", "--check", "input.nc"},
		},
		{
			name:     "quoted path with spaces",
			input:    `runner "C:\test cases\a.nc" --out result`,
			expected: []string{"runner", `C:\test cases\a.nc`, "--out", "result"},
		},
		{
			name:     "embedded quotes inside word",
			input:    `/caption="my test" /command`,
			expected: []string{"/caption=my test", "/command"},
		},
		{
			name:     "surrounding whitespace",
			input:    "  a  b\t c ",
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "empty input",
			input:    "",
			expected: nil,
		},
		{
			name:     "unterminated quote",
			input:    `app "unterminated`,
			hasError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			argv, err := Split(tc.input)
			if tc.hasError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, argv)
		})
	}
}
