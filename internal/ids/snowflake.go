package ids

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator hands out time-ordered ids that stay unique under rapid-fire
// creation on one node and across nodes with distinct node numbers.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator creates a generator for the given node (0-1023).
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("ids: init snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// MustGenerator is NewGenerator for wiring code and tests.
func MustGenerator(nodeID int64) *Generator {
	g, err := NewGenerator(nodeID)
	if err != nil {
		panic(err)
	}
	return g
}

// Next returns a new id in its base-10 string form.
func (g *Generator) Next() string {
	return g.node.Generate().String()
}
