package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisToGlob(t *testing.T) {
	assert.Equal(t, "query:[!ab]", redisToGlob("query:[^ab]"))
	assert.Equal(t, `query:\{a\,b\}`, redisToGlob("query:{a,b}"))
	assert.Equal(t, `query:\[x`, redisToGlob("query:[x"))
}

func TestGlobMatcher(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"*", "query:anything at all", true},
		{"query:*", "query:a/b/c", true},
		{"query:*", "embedding:x", false},
		{"*:revenue", "query:revenue", true},
		{"query:?", "query:a", true},
		{"query:?", "query:ab", false},
		{"query:[ab]", "query:b", true},
		{"query:[^ab]", "query:b", false},
		{"query:[a-c]x", "query:bx", true},
		{"query:[a-c]x", "query:dx", false},
		{`query:\*`, "query:*", true},
		{`query:\*`, "query:x", false},
		{"query:what (is) $revenue.", "query:what (is) $revenue.", true},
		{"query:[unterminated", "query:[unterminated", true},
		{"query:{a,b}", "query:{a,b}", true},
		{"query:{a,b}", "query:a", false},
		{"query:a]b", "query:a]b", true},
		{"*:2023*", "query:what was revenue in 2023?\nand 2024", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.key, func(t *testing.T) {
			match, err := newMatcher(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, match(tt.key))
		})
	}
}
