package filtering_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/patallen/floorcast/filtering"
)

func TestBlockList_ShouldBlock(t *testing.T) {
	t.Parallel()

	bl := filtering.NewBlockList([]string{"update.*"})

	assert.True(t, bl.ShouldBlock("update.core"))
	assert.False(t, bl.ShouldBlock("light.kitchen"))
}

func TestBlockList_Empty(t *testing.T) {
	t.Parallel()

	bl := filtering.NewBlockList(nil)

	assert.False(t, bl.ShouldBlock("update.core"))
	assert.False(t, bl.ShouldBlock("anything.at.all"))
}

func TestBlockList_CharacterClass(t *testing.T) {
	t.Parallel()

	bl := filtering.NewBlockList([]string{"sensor.[ab]*"})

	assert.True(t, bl.ShouldBlock("sensor.a_temp"))
	assert.True(t, bl.ShouldBlock("sensor.b_temp"))
	assert.False(t, bl.ShouldBlock("sensor.c_temp"))
}
