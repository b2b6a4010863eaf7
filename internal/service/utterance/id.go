// Package utterance numbers recognized utterances and enforces that each
// one delivers at most one final transcript.
package utterance

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out utterance IDs scoped to a stream.
type Generator struct {
	counter atomic.Uint64
}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Next(streamId string) string {
	n := g.counter.Add(1)
	return fmt.Sprintf("%s-utt-%d", streamId, n)
}
