// Package scrub redacts secrets and sensitive data from free-form text
// before it reaches an audit entry, a log line, or a channel message
// (spec §4.11). It is pure: no I/O, no hidden state beyond the
// immutable pattern list it was built with.
package scrub

import "regexp"

// Pattern is one (name, regex, replacement) rule. Patterns are applied
// in list order; a pattern that matches contributes its Name to the
// Result's RedactedPatterns list exactly once, regardless of how many
// times it matched.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// Scrubber holds an ordered, immutable list of Patterns.
type Scrubber struct {
	patterns []Pattern
}

// NewScrubber builds a Scrubber from patterns, applied in the given
// order.
func NewScrubber(patterns ...Pattern) *Scrubber {
	cp := make([]Pattern, len(patterns))
	copy(cp, patterns)
	return &Scrubber{patterns: cp}
}

// DefaultScrubber returns a Scrubber configured with DefaultPatterns().
func DefaultScrubber() *Scrubber {
	return NewScrubber(DefaultPatterns()...)
}

// Result is the outcome of scrubbing one piece of text.
type Result struct {
	Text             string   `json:"text"`
	RedactedPatterns []string `json:"redacted_patterns,omitempty"`
}

// Scrub applies every pattern to text in order, returning the redacted
// text and the names of every pattern that matched.
func (s *Scrubber) Scrub(text string) Result {
	redacted := make([]string, 0)
	for _, p := range s.patterns {
		if p.Regex.MatchString(text) {
			text = p.Regex.ReplaceAllString(text, p.Replacement)
			redacted = append(redacted, p.Name)
		}
	}
	return Result{Text: text, RedactedPatterns: redacted}
}
