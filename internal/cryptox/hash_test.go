package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentHash(t *testing.T) {
	// BLAKE2b-256 of the empty input.
	assert.Equal(t, "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8", ContentHash(nil))

	a := ContentHash([]byte("a"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, ContentHash([]byte("b")))
	assert.Equal(t, a, ContentHash([]byte("a")))
}

func TestETag(t *testing.T) {
	tag := ETag([]byte("x"))
	assert.Equal(t, `"`+ContentHash([]byte("x"))+`"`, tag)
}
