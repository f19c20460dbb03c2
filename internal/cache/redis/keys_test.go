package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Key layouts are consumed by other processes; changing them silently breaks
// every reader of the mirror.
func TestMirrorKeyLayout(t *testing.T) {
	assert.Equal(t, "price:tok-a", priceKey("tok-a"))
	assert.Equal(t, "book:tok-a:top", bookTopKey("tok-a"))
}
