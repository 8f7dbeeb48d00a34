package usecase

import (
	"sync"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

// StateRegistry is the injected lifecycle store for in-flight documents.
// Each Put replaces the whole snapshot atomically, so a poll never observes
// an old message paired with a new progress value. Transitions only move
// forward along uploading -> processing -> {processed, error}; terminal
// states are immutable for the current upload attempt.
type StateRegistry struct {
	mu     sync.RWMutex
	states map[string]domain.DocumentState
}

func NewStateRegistry() *StateRegistry {
	return &StateRegistry{states: make(map[string]domain.DocumentState)}
}

// Begin registers a fresh upload attempt, discarding any terminal state left
// by a previous attempt for the same document id.
func (r *StateRegistry) Begin(documentID string, state domain.DocumentState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[documentID] = state
}

// Put applies a forward transition and reports whether it was accepted.
// Within the same status the progress indicator never moves backwards.
func (r *StateRegistry) Put(documentID string, state domain.DocumentState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.states[documentID]
	if ok {
		if current.Status.Terminal() {
			return false
		}
		if statusRank(state.Status) < statusRank(current.Status) {
			return false
		}
		if state.Status == current.Status && state.Progress < current.Progress {
			return false
		}
	}
	r.states[documentID] = state
	return true
}

func (r *StateRegistry) Get(documentID string) (domain.DocumentState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[documentID]
	return state, ok
}

func statusRank(status domain.DocumentStatus) int {
	switch status {
	case domain.StatusUploading:
		return 0
	case domain.StatusProcessing:
		return 1
	case domain.StatusProcessed, domain.StatusError:
		return 2
	default:
		return 0
	}
}
