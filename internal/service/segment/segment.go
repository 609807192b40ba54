package segment

import (
	"fmt"
	"sync/atomic"
)

// Generator mints revision ids for published events.
type Generator struct {
	counter uint64
}

func New() *Generator {
	return &Generator{}
}

// Next returns "<room>-rev-<n>". The counter is shared across rooms.
func (g *Generator) Next(room string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-rev-%d", room, n)
}
