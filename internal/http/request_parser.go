// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for reading and validating query and
// path parameters shared by the API handlers.

package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"personalos/internal/core"
)

// maxParamLength caps free-text query parameters such as titles.
const maxParamLength = 200

// QueryParam returns a trimmed, sanitized query parameter, cut to
// maxParamLength runes.
func QueryParam(query url.Values, name string) string {
	v := SanitizeInput(query.Get(name))
	if r := []rune(v); len(r) > maxParamLength {
		v = strings.TrimSpace(string(r[:maxParamLength]))
	}
	return v
}

// ParseLimit reads a positive integer parameter. Missing, malformed or
// non-positive values yield def; larger values are clamped to max.
func ParseLimit(query url.Values, name string, def, max int) int {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// PathDate parses the {date} path value as YYYY-MM-DD.
func PathDate(r *http.Request) (core.Date, error) {
	return core.ParseDate(strings.TrimSpace(r.PathValue("date")))
}

// SanitizeInput removes control characters and trims whitespace.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
