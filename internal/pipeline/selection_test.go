package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelection_Toggle(t *testing.T) {
	s := NewSelection()

	s.Toggle("L1", false)
	assert.Equal(t, []string{"L1"}, s.IDs())

	s.Toggle("L2", false)
	assert.Equal(t, []string{"L2"}, s.IDs())

	s.Toggle("L3", true)
	s.Toggle("L4", true)
	assert.Equal(t, []string{"L2", "L3", "L4"}, s.IDs())

	s.Toggle("L3", true)
	assert.Equal(t, []string{"L2", "L4"}, s.IDs())

	s.Toggle("L4", false)
	assert.Equal(t, []string{"L2"}, s.IDs())

	s.Toggle("", true)
	assert.Equal(t, 1, s.Len())
}

func TestSelection_ClearAndRemove(t *testing.T) {
	s := NewSelection()
	s.Toggle("L1", true)
	s.Toggle("L2", true)

	s.Remove("L1")
	s.Remove("missing")
	assert.False(t, s.Has("L1"))
	assert.True(t, s.Has("L2"))

	s.Clear()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.IDs())
}
