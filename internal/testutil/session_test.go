package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedSessionGenerator(t *testing.T) {
	gen := NewFixedSessionGenerator("sess-1")
	assert.Equal(t, "sess-1", gen.Generate())
	assert.Equal(t, "sess-1", gen.Generate())
}

func TestFixedSessionGenerator_Default(t *testing.T) {
	assert.Equal(t, "test-session-default", NewFixedSessionGenerator("").Generate())
}
