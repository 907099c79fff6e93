// Package pattern evaluates routing-rule patterns against subjects and
// recipient addresses. All matching is case-insensitive.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Type is the kind of a routing-rule pattern
type Type string

const (
	Wildcard   Type = "wildcard"
	StartsWith Type = "starts_with"
	Contains   Type = "contains"
	EndsWith   Type = "ends_with"
	Regex      Type = "regex"
)

// Types lists every supported pattern type
var Types = []Type{Wildcard, StartsWith, Contains, EndsWith, Regex}

// ParseType converts a stored pattern type name into a Type
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown pattern type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the supported pattern types
func (t Type) Valid() bool {
	switch t {
	case Wildcard, StartsWith, Contains, EndsWith, Regex:
		return true
	}
	return false
}

// Match reports whether candidate matches pattern under the given type.
// Pattern and candidate are compared as given, surrounding whitespace
// included. An empty pattern or candidate never matches.
func Match(t Type, pattern, candidate string) bool {
	if pattern == "" || candidate == "" {
		return false
	}

	switch t {
	case Wildcard:
		re, err := wildcardRegexp(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(candidate)
	case StartsWith:
		return strings.HasPrefix(strings.ToLower(candidate), strings.ToLower(pattern))
	case Contains:
		return strings.Contains(strings.ToLower(candidate), strings.ToLower(pattern))
	case EndsWith:
		return strings.HasSuffix(strings.ToLower(candidate), strings.ToLower(pattern))
	case Regex:
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return false
		}
		return re.MatchString(candidate)
	}
	return false
}

// MatchAny reports whether any pattern in the list matches any of the
// candidates.
func MatchAny(t Type, patterns []string, candidates ...string) bool {
	for _, p := range patterns {
		for _, c := range candidates {
			if Match(t, p, c) {
				return true
			}
		}
	}
	return false
}

// Split turns a comma-separated pattern list into its trimmed, non-empty
// entries.
func Split(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that every pattern in the list can be evaluated under t.
// Only regex patterns can fail.
func Validate(t Type, patterns []string) error {
	if !t.Valid() {
		return fmt.Errorf("unknown pattern type %q", t)
	}
	if t != Regex {
		return nil
	}
	for _, p := range patterns {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			return fmt.Errorf("invalid regex pattern %q: %w", p, err)
		}
	}
	return nil
}

// wildcardRegexp translates a wildcard pattern into an anchored,
// case-insensitive regular expression. '*' matches any run of characters
// and '?' exactly one; everything else is literal.
func wildcardRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?is)^`)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`$`)
	return regexp.Compile(b.String())
}
