package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey_NormalizesCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	a := cacheKey("  Hello World  ", "EN")
	b := cacheKey("hello world", "en")
	assert.Equal(t, a, b)
}

func TestCacheKey_DistinctLocaleDistinctKey(t *testing.T) {
	t.Parallel()

	a := cacheKey("hello", "en")
	b := cacheKey("hello", "fr")
	assert.NotEqual(t, a, b)
}
