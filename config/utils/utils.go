package utils

import (
	"net/url"
	"regexp"
	"slices"
)

// IsValidURL checks if a string is a valid URL with one of the given schemes.
func IsValidURL(s string, schemes ...string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil || u.Host == "" {
		return false
	}
	return slices.Contains(schemes, u.Scheme)
}

// IsValidDBConnectionString checks if a string is a valid PostgreSQL connection string.
func IsValidDBConnectionString(s string) bool {
	// Regular expression to match a valid PostgreSQL connection string
	var dbConnStringRegex = regexp.MustCompile(`^postgres(ql)?://[^:]+:[^@]+@[^:/]+:\d+/.+$`)
	return dbConnStringRegex.MatchString(s)
}
