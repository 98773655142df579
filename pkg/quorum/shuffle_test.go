package quorum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShuffle_PreservesElements(t *testing.T) {
	nodes := threeNodes()
	shuffled := Shuffle(nodes)

	assert.Len(t, shuffled, len(nodes))
	seen := make(map[string]bool)
	for _, n := range shuffled {
		seen[n.ID] = true
	}
	for _, n := range nodes {
		assert.True(t, seen[n.ID], "node %s missing after shuffle", n.ID)
	}
}

func TestShuffle_DoesNotMutateInput(t *testing.T) {
	nodes := threeNodes()
	orig := make([]Node, len(nodes))
	copy(orig, nodes)

	for i := 0; i < 50; i++ {
		Shuffle(nodes)
	}
	assert.Equal(t, orig, nodes)
}

func TestShuffle_Empty(t *testing.T) {
	assert.Empty(t, Shuffle(nil))
}

func TestSplitNodes(t *testing.T) {
	nodes := threeNodes()

	primary, backup := SplitNodes(nodes, 2)
	assert.Len(t, primary, 2)
	assert.Len(t, backup, 1)
	assert.Equal(t, nodes[2].ID, backup[0].ID)

	primary, backup = SplitNodes(nodes, 3)
	assert.Len(t, primary, 3)
	assert.Empty(t, backup)

	primary, backup = SplitNodes(nodes, 5)
	assert.Len(t, primary, 3)
	assert.Empty(t, backup)
}
