package story

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicateStory is returned when registering an id that already exists.
	ErrDuplicateStory = errors.New("duplicate story id")
	// ErrUnknownStory is returned when a story id is not registered.
	ErrUnknownStory = errors.New("unknown story")
	// ErrUnknownStep is returned when a step index is out of range for a
	// registered story.
	ErrUnknownStep = errors.New("unknown step")
	// ErrRegistryFrozen is returned when registering after Freeze.
	ErrRegistryFrozen = errors.New("registry is frozen")
)

// Registry holds the set of defined stories. Registration is a
// write-once-then-freeze phase: register everything at startup, call Freeze,
// then serve concurrent lookups for the life of the process.
type Registry struct {
	mu      sync.RWMutex
	frozen  bool
	ordered []*Definition
	byID    map[string]*Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Definition)}
}

// Register adds a story. A duplicate id is rejected and the registry keeps
// the first registration.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return errors.New("story definition is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %q: %w", def.id, ErrRegistryFrozen)
	}
	if _, exists := r.byID[def.id]; exists {
		return fmt.Errorf("register %q: %w", def.id, ErrDuplicateStory)
	}

	r.byID[def.id] = def
	r.ordered = append(r.ordered, def)
	return nil
}

// Freeze ends the registration phase. Lookups after Freeze take no locks on
// the hot path beyond a read lock that is never contended by writers.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// FindByTrigger returns the first registered story whose trigger matches the
// envelope. First-match-wins with registration order as the tie-break; this
// ordering is a deliberate, observable policy.
func (r *Registry) FindByTrigger(env Envelope) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, def := range r.ordered {
		if def.trigger.Match(env) {
			return def, true
		}
	}
	return nil, false
}

// Get returns the story registered under id.
func (r *Registry) Get(id string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byID[id]
	return def, ok
}

// StepAt resolves (story id, step index) to an executable step.
func (r *Registry) StepAt(id string, index int) (StepFunc, error) {
	def, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("story %q: %w", id, ErrUnknownStory)
	}

	fn, ok := def.Step(index)
	if !ok {
		return nil, fmt.Errorf("story %q step %d: %w", id, index, ErrUnknownStep)
	}
	return fn, nil
}

// StepCount returns the number of steps in the story registered under id.
func (r *Registry) StepCount(id string) (int, error) {
	def, ok := r.Get(id)
	if !ok {
		return 0, fmt.Errorf("story %q: %w", id, ErrUnknownStory)
	}
	return def.StepCount(), nil
}

// Len returns the number of registered stories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}
