// Package log holds helpers for logging untrusted payloads, e.g. endpoint responses.
package log

import (
	"strings"
	"unicode/utf8"
)

// defaultPreviewLen limits the logged length of a payload.
const defaultPreviewLen = 100

// Preview returns a single-line prefix of payload, safe to include in logs and errors.
//
// Line breaks are replaced by spaces, and a payload longer than maxLen bytes
// (defaultPreviewLen if unset) is cut at a rune boundary and suffixed with "...".
func Preview(payload string, maxLen ...int) string {
	limit := defaultPreviewLen
	if len(maxLen) > 0 {
		limit = maxLen[0]
	}

	payload = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(payload)
	if len(payload) <= limit {
		return payload
	}

	const ellipsis = "..."
	if limit <= len(ellipsis) {
		return cutAtRune(payload, limit)
	}
	return cutAtRune(payload, limit-len(ellipsis)) + ellipsis
}

// cutAtRune returns the longest prefix of s of at most n bytes that does not split a rune.
func cutAtRune(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
