package utterance

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of one utterance.
type State int

const (
	// StateOpen accepts interim results.
	StateOpen State = iota
	// StateFinalized has delivered its final result.
	StateFinalized
	// StateClosed ended normally.
	StateClosed
	// StateDropped ended without a final, e.g. the stream failed mid-utterance.
	StateDropped
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateFinalized:
		return "FINALIZED"
	case StateClosed:
		return "CLOSED"
	case StateDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal reports whether the state is CLOSED or DROPPED.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateDropped
}

var (
	ErrUtteranceClosed   = errors.New("utterance is closed")
	ErrAlreadyFinalized  = errors.New("final already delivered for this utterance")
	ErrInterimAfterFinal = errors.New("interim result after final")
)

// Lifecycle guards a single utterance.
//
//	OPEN --Final()--> FINALIZED --Close()--> CLOSED
//	  |                   |
//	  +------Drop()-------+--> DROPPED
//
// Interim() may be called any number of times while OPEN.
type Lifecycle struct {
	mu    sync.RWMutex
	id    string
	state State
}

func NewLifecycle(id string) *Lifecycle {
	return &Lifecycle{id: id, state: StateOpen}
}

func (l *Lifecycle) ID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.id
}

func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Interim records an interim result.
func (l *Lifecycle) Interim() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateOpen:
		return nil
	case StateFinalized:
		return ErrInterimAfterFinal
	default:
		return ErrUtteranceClosed
	}
}

// Final records the final result. Only the first call succeeds.
func (l *Lifecycle) Final() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateOpen:
		l.state = StateFinalized
		return nil
	case StateFinalized:
		return ErrAlreadyFinalized
	default:
		return ErrUtteranceClosed
	}
}

// Close ends the utterance. Idempotent.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.IsTerminal() {
		l.state = StateClosed
	}
}

// Drop abandons the utterance without a final. Returns false if it had
// already ended.
func (l *Lifecycle) Drop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateDropped
	return true
}
