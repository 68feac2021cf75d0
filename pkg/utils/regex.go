package utils

import (
	"regexp"
	"strings"
)

// CompileRegexPatterns compiles blocked_url_patterns entries. Blank entries are
// skipped; surrounding whitespace from YAML lists is ignored.
func CompileRegexPatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, raw := range patterns {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, WrapErrorf(ErrConfigValidation, "invalid blocked_url_patterns entry #%d ('%s'): %v", i+1, pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// MatchesAny reports whether s matches at least one of patterns.
func MatchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
