package log

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		maxLen   []int
		expected string
	}{
		{
			name:     "short payload is unchanged",
			payload:  `{"jsonrpc":"2.0","id":1,"result":"0x1"}`,
			expected: `{"jsonrpc":"2.0","id":1,"result":"0x1"}`,
		},
		{
			name:     "long payload is cut to the default length",
			payload:  strings.Repeat("a", 150),
			expected: strings.Repeat("a", 97) + "...",
		},
		{
			name:     "custom length",
			payload:  "<html>bad gateway</html>",
			maxLen:   []int{10},
			expected: "<html>b...",
		},
		{
			name:     "line breaks are flattened",
			payload:  "502 Bad Gateway\r\nnginx\n",
			expected: "502 Bad Gateway nginx ",
		},
		{
			name:     "multi-byte runes are not split",
			payload:  "ééééé",
			maxLen:   []int{6},
			expected: "é...",
		},
		{
			name:     "length shorter than the ellipsis",
			payload:  "abcdef",
			maxLen:   []int{2},
			expected: "ab",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, Preview(test.payload, test.maxLen...))
		})
	}
}
