// Package sandbox implements the Request Filter (spec §4.11): a pure,
// pre-dispatch gate that blocks requests by path, pattern, size, or
// simple content heuristics before they reach a handler.
package sandbox

import (
	"regexp"
	"strings"
)

// Verdict is the tagged Allowed | Blocked{reason} outcome of a Check
// call.
type Verdict struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

func allowed() Verdict              { return Verdict{Blocked: false} }
func blocked(reason string) Verdict { return Verdict{Blocked: true, Reason: reason} }

// xssMarkers are simple, high-signal substrings that indicate an
// attempted script injection in a URL path. This is a heuristic, not a
// full HTML parser — it exists to reject obviously hostile paths
// cheaply, before any handler runs.
var xssMarkers = []string{"<script", "javascript:", "onerror=", "onload="}

// sqlInjectionPatterns are simple heuristics over a request body,
// looking for classic injection shapes rather than attempting to parse
// SQL.
var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\s+select\b`),
	regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i)--\s*$`),
	regexp.MustCompile(`(?i);\s*drop\s+table\b`),
	regexp.MustCompile(`(?i)'\s*or\s*'1'\s*=\s*'1`),
}

// Filter blocks requests whose path appears in an exact blocklist,
// matches a blocked regex, exceeds a size cap, contains XSS markers in
// the path, or whose body matches a SQL-injection heuristic.
type Filter struct {
	blockedPaths    map[string]struct{}
	blockedPatterns []*regexp.Regexp
	maxBodySize     int64
}

// Option configures an optional Filter field, following the framework's
// functional-options convention.
type Option func(*Filter)

func WithBlockedPaths(paths ...string) Option {
	return func(f *Filter) {
		for _, p := range paths {
			f.blockedPaths[p] = struct{}{}
		}
	}
}

func WithBlockedPatterns(patterns ...*regexp.Regexp) Option {
	return func(f *Filter) { f.blockedPatterns = append(f.blockedPatterns, patterns...) }
}

func WithMaxBodySize(n int64) Option {
	return func(f *Filter) { f.maxBodySize = n }
}

// DefaultMaxBodySize caps request bodies at 10MB absent an explicit
// WithMaxBodySize override.
const DefaultMaxBodySize = 10 * 1024 * 1024

// NewFilter builds a Filter. With no options it blocks nothing by path
// or pattern and caps bodies at DefaultMaxBodySize.
func NewFilter(opts ...Option) *Filter {
	f := &Filter{
		blockedPaths: make(map[string]struct{}),
		maxBodySize:  DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Check evaluates path and body against every rule, in the order the
// spec lists them: exact blocklist, blocked regex, size cap, XSS
// markers in the path, then SQL-injection heuristics in the body.
func (f *Filter) Check(path string, body []byte) Verdict {
	if _, ok := f.blockedPaths[path]; ok {
		return blocked("path is explicitly blocked")
	}

	for _, re := range f.blockedPatterns {
		if re.MatchString(path) {
			return blocked("path matches a blocked pattern")
		}
	}

	if f.maxBodySize > 0 && int64(len(body)) > f.maxBodySize {
		return blocked("request body exceeds the configured size cap")
	}

	lowerPath := strings.ToLower(path)
	for _, marker := range xssMarkers {
		if strings.Contains(lowerPath, marker) {
			return blocked("path contains an XSS marker")
		}
	}

	bodyText := string(body)
	for _, re := range sqlInjectionPatterns {
		if re.MatchString(bodyText) {
			return blocked("body matches a SQL-injection heuristic")
		}
	}

	return allowed()
}
