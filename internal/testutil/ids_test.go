package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceIDGenerator_Increments(t *testing.T) {
	gen := NewSequenceIDGenerator("fusion")
	assert.Equal(t, "fusion-1", gen.Generate())
	assert.Equal(t, "fusion-2", gen.Generate())

	gen.Reset()
	assert.Equal(t, "fusion-1", gen.Generate())
}

func TestSequenceIDGenerator_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "session-1", NewSequenceIDGenerator("").Generate())
}
