package cache

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// matcher reports whether a key matches a compiled pattern.
type matcher func(key string) bool

// newMatcher compiles a Redis KEYS/SCAN pattern. The glob has no separators,
// so '*' and '?' also match '/' and ':'.
func newMatcher(pattern string) (matcher, error) {
	if pattern == "*" {
		return func(string) bool { return true }, nil
	}
	g, err := glob.Compile(redisToGlob(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return g.Match, nil
}

// redisToGlob rewrites Redis pattern syntax into glob syntax. Negated classes
// become "[!", braces and commas are literal, an unterminated '[' is literal.
func redisToGlob(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '\\':
			b.WriteRune('\\')
			if i+1 < len(runes) {
				i++
				b.WriteRune(runes[i])
			} else {
				b.WriteRune('\\')
			}
		case '{', '}', ',', ']':
			b.WriteRune('\\')
			b.WriteRune(r)
		case '[':
			end := classEnd(runes, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			body := runes[i+1 : end]
			b.WriteRune('[')
			if len(body) > 0 && body[0] == '^' {
				b.WriteRune('!')
				body = body[1:]
			}
			b.WriteString(string(body))
			b.WriteRune(']')
			i = end
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// classEnd returns the index of the ']' closing the class opened at start,
// or -1 when the class is unterminated.
func classEnd(runes []rune, start int) int {
	for j := start + 1; j < len(runes); j++ {
		switch runes[j] {
		case '\\':
			j++
		case ']':
			if j > start+1 {
				return j
			}
		}
	}
	return -1
}
