package utterance

import "sync"

// Tracker follows the results of one recognition stream and decides which
// of them reach the router. Results sharing a result index belong to the
// same utterance; a repeated or late final for an utterance is suppressed.
type Tracker struct {
	gen      *Generator
	streamId string

	mu      sync.Mutex
	current *Lifecycle
	index   int
}

func NewTracker(gen *Generator, streamId string) *Tracker {
	if gen == nil {
		gen = NewGenerator()
	}
	return &Tracker{gen: gen, streamId: streamId}
}

// Observe records a result and returns its utterance ID and whether it
// should be delivered.
func (t *Tracker) Observe(resultIndex int, final bool) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil || resultIndex != t.index || t.current.State().IsTerminal() {
		if t.current != nil {
			// an utterance that never finalized was superseded
			if t.current.State() == StateOpen {
				t.current.Drop()
			} else {
				t.current.Close()
			}
		}
		t.current = NewLifecycle(t.gen.Next(t.streamId))
		t.index = resultIndex
	}

	var err error
	if final {
		err = t.current.Final()
	} else {
		err = t.current.Interim()
	}
	return t.current.ID(), err == nil
}

// Drop abandons the utterance in progress, if any. It returns the dropped
// utterance ID.
func (t *Tracker) Drop() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil || t.current.State() != StateOpen {
		return "", false
	}
	t.current.Drop()
	return t.current.ID(), true
}

// Close ends the utterance in progress without delivering anything.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		t.current.Close()
	}
}
