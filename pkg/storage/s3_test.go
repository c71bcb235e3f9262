package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	key, hash := ObjectKey("receipt.pdf", []byte("hello world"))

	// sha256("hello world") starts with b94d27b9.
	assert.Equal(t, "b94d27b9/receipt.pdf", key)
	assert.Len(t, hash, 64)
	assert.Equal(t, "b94d27b9", hash[:8])
}

func TestObjectKeyStablePerContent(t *testing.T) {
	k1, h1 := ObjectKey("a.png", []byte{1, 2, 3})
	k2, h2 := ObjectKey("a.png", []byte{1, 2, 3})
	k3, _ := ObjectKey("a.png", []byte{1, 2, 4})

	assert.Equal(t, k1, k2)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, k1, k3)
}
