package invalidation

import (
	"errors"
	"regexp"
	"strings"
	"sync"
)

// PatternMatcher matches glob-style and regex patterns against the set of
// fingerprint ids a caller hands in via EvictPatternRequest.KnownIDs. Ids are
// opaque hex digests (see fingerprint.Hash), not structured strings, so
// patterns here are glob/regex shapes over a hex digest rather than the
// colon-delimited namespacing a key-value cache would use.
//
// Supported patterns:
// - Exact: "3f9c2a..." matches only that one id
// - Prefix wildcard: "3f9c*" matches every id sharing that prefix
// - Suffix wildcard: "*2a91" matches every id sharing that suffix
// - Contains: "*9c2a*" matches any id containing that substring
// - Regex: "^3f9c[0-9a-f]+$" for callers that track richer grouping themselves
type PatternMatcher struct {
	regexCache sync.Map // map[string]*regexp.Regexp
}

// NewPatternMatcher creates a new pattern matcher with regex caching.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// Match returns every id in ids that matches pattern.
func (pm *PatternMatcher) Match(pattern string, ids []string) []string {
	if pattern == "" {
		return []string{}
	}

	// Fast path: exact match (no wildcards)
	if !IsWildcard(pattern) && !IsRegex(pattern) {
		for _, id := range ids {
			if id == pattern {
				return []string{id}
			}
		}
		return []string{}
	}

	if IsWildcard(pattern) {
		return pm.matchWildcard(pattern, ids)
	}

	return pm.matchRegex(pattern, ids)
}

// IsWildcard checks if a pattern contains wildcard characters.
func IsWildcard(pattern string) bool {
	return strings.Contains(pattern, "*")
}

// IsRegex checks if a pattern looks like a regex (contains regex metacharacters).
func IsRegex(pattern string) bool {
	regexChars := []string{"[", "]", "(", ")", "^", "$", "+", "?", "{", "}", "|"}
	for _, char := range regexChars {
		if strings.Contains(pattern, char) {
			return true
		}
	}
	return false
}

// matchWildcard performs optimized wildcard matching over a set of ids.
func (pm *PatternMatcher) matchWildcard(pattern string, ids []string) []string {
	matches := make([]string, 0)

	if pattern == "*" {
		return ids
	}

	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") {
		substring := strings.Trim(pattern, "*")
		for _, id := range ids {
			if strings.Contains(id, substring) {
				matches = append(matches, id)
			}
		}
	} else if strings.HasPrefix(pattern, "*") {
		suffix := strings.TrimPrefix(pattern, "*")
		for _, id := range ids {
			if strings.HasSuffix(id, suffix) {
				matches = append(matches, id)
			}
		}
	} else if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		for _, id := range ids {
			if strings.HasPrefix(id, prefix) {
				matches = append(matches, id)
			}
		}
	} else {
		regexPattern := wildcardToRegex(pattern)
		return pm.matchRegex(regexPattern, ids)
	}

	return matches
}

// matchRegex performs regex matching over ids, with compiled-pattern caching.
func (pm *PatternMatcher) matchRegex(pattern string, ids []string) []string {
	var re *regexp.Regexp
	if cached, ok := pm.regexCache.Load(pattern); ok {
		re = cached.(*regexp.Regexp)
	} else {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return []string{}
		}
		pm.regexCache.Store(pattern, re)
	}

	matches := make([]string, 0)
	for _, id := range ids {
		if re.MatchString(id) {
			matches = append(matches, id)
		}
	}

	return matches
}

// wildcardToRegex converts a wildcard pattern to a regex pattern.
// Example: "3f9c*2a91" -> "^3f9c.*2a91$"
func wildcardToRegex(pattern string) string {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, "\\*", ".*")
	return "^" + escaped + "$"
}

// MatchCount returns the number of ids that match the pattern. An exact
// pattern is counted without building a slice; wildcard and regex patterns
// are counted from the slice Match returns. Used for eviction-scope previews.
func (pm *PatternMatcher) MatchCount(pattern string, ids []string) int {
	if pattern == "" {
		return 0
	}

	if !IsWildcard(pattern) && !IsRegex(pattern) {
		for _, id := range ids {
			if id == pattern {
				return 1
			}
		}
		return 0
	}

	return len(pm.Match(pattern, ids))
}

// ValidatePattern checks if a pattern is safe and valid.
// Returns error if pattern could cause ReDoS or is invalid.
func (pm *PatternMatcher) ValidatePattern(pattern string) error {
	if pattern == "" {
		return nil
	}
	if len(pattern) > 1000 {
		return errors.New("pattern too long: potential DoS")
	}

	if IsRegex(pattern) {
		_, err := regexp.Compile(pattern)
		if err != nil {
			return err
		}
	}

	return nil
}

// ClearCache clears the regex cache (useful for testing or memory pressure).
func (pm *PatternMatcher) ClearCache() {
	pm.regexCache = sync.Map{}
}

// CacheSize returns the approximate number of cached regex patterns.
func (pm *PatternMatcher) CacheSize() int {
	count := 0
	pm.regexCache.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}
