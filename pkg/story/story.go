// Package story defines the dialogue domain: message envelopes, entry
// triggers, multi-step story definitions, and the registry that resolves
// envelopes to stories.
package story

import (
	"errors"
	"fmt"
)

// Definition is an immutable, registered story: an entry trigger plus an
// ordered sequence of steps.
type Definition struct {
	id      string
	trigger Trigger
	steps   []StepFunc
}

// ID returns the unique story identifier.
func (d *Definition) ID() string {
	return d.id
}

// Trigger returns the story's entry condition.
func (d *Definition) Trigger() Trigger {
	return d.trigger
}

// StepCount returns the number of steps.
func (d *Definition) StepCount() int {
	return len(d.steps)
}

// Step returns the step at index, or false when the index is out of range.
func (d *Definition) Step(index int) (StepFunc, bool) {
	if index < 0 || index >= len(d.steps) {
		return nil, false
	}
	return d.steps[index], true
}

// Builder assembles a story definition declaratively:
//
//	def, err := story.Define("greeting", story.OnText("hi")).
//		AddStep(greet).
//		Build()
type Builder struct {
	def *Definition
}

// Define starts a story with the given id and entry trigger.
func Define(id string, trigger Trigger) *Builder {
	return &Builder{def: &Definition{id: id, trigger: trigger}}
}

// AddStep appends one step to the story.
func (b *Builder) AddStep(fn StepFunc) *Builder {
	b.def.steps = append(b.def.steps, fn)
	return b
}

// Build validates and returns the immutable definition.
func (b *Builder) Build() (*Definition, error) {
	if b.def.id == "" {
		return nil, errors.New("story id is required")
	}
	if b.def.trigger == nil {
		return nil, fmt.Errorf("story %q: trigger is required", b.def.id)
	}
	if len(b.def.steps) == 0 {
		return nil, fmt.Errorf("story %q: at least one step is required", b.def.id)
	}
	for i, fn := range b.def.steps {
		if fn == nil {
			return nil, fmt.Errorf("story %q: step %d is nil", b.def.id, i)
		}
	}

	return b.def, nil
}

// MustBuild is Build for static story sets known to be valid; it panics on
// definition errors.
func (b *Builder) MustBuild() *Definition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}
