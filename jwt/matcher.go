package jwt

import "regexp"

// Matcher decides whether a registered claim value (iss, aud or sub) is
// acceptable.
type Matcher interface {
	Match(value string) bool
}

// MatchExact accepts exactly one value.
type MatchExact string

// Match reports whether value equals m.
func (m MatchExact) Match(value string) bool {
	return string(m) == value
}

// MatchFunc adapts a predicate to [Matcher].
type MatchFunc func(value string) bool

// Match calls f(value).
func (f MatchFunc) Match(value string) bool {
	return f(value)
}

type patternMatcher struct {
	re *regexp.Regexp
}

func (m patternMatcher) Match(value string) bool {
	return m.re.MatchString(value)
}

// MatchPattern accepts values matched by re. The expression is not
// anchored implicitly.
func MatchPattern(re *regexp.Regexp) Matcher {
	return patternMatcher{re: re}
}

// MustMatchPattern compiles expr and returns a pattern matcher. It panics
// on an invalid expression and is meant for package-level configuration.
func MustMatchPattern(expr string) Matcher {
	return patternMatcher{re: regexp.MustCompile(expr)}
}
