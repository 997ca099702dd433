package model

import "sync"

// StatusSnapshot is a point-in-time view of the model load status.
type StatusSnapshot struct {
	Kind   Kind   `json:"model"`
	Loaded bool   `json:"is_loaded"`
	Error  string `json:"error,omitempty"`
}

// Status tracks whether the server's model is usable. It is created at
// bootstrap and injected into every component that needs it; there is no
// ambient global. Mutated only by the load routine and by the failure path
// of a generation.
type Status struct {
	mu     sync.RWMutex
	kind   Kind
	loaded bool
	err    string
}

// NewStatus creates a Status for the given kind, initially unloaded.
func NewStatus(kind Kind) *Status {
	return &Status{kind: kind}
}

// MarkLoaded records a successful load and clears any previous error.
func (s *Status) MarkLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.err = ""
}

// MarkFailed records a failure and marks the model unavailable. The model
// stays unavailable until an operator restarts the process.
func (s *Status) MarkFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	if err != nil {
		s.err = err.Error()
	}
}

// Loaded reports whether the model is available.
func (s *Status) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Snapshot returns the current status.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatusSnapshot{Kind: s.kind, Loaded: s.loaded, Error: s.err}
}
