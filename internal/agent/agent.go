// Package agent holds the persona catalog: who the relay can put on the
// other end of a voice session. Each persona pairs a system prompt with
// a synthesized voice. The built-in catalog can be replaced or extended
// from a YAML file at startup.
package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// DefaultAgentID is the persona used when a client asks for an unknown
// or empty agent.
const DefaultAgentID = "general_assistant"

// englishPreamble is prepended to every persona's instructions. The
// pipeline transcribes input as English, so the model must not drift
// into other languages on its own.
const englishPreamble = "Always respond in English. The user is speaking English. " +
	"Never switch to another language unless the user explicitly asks.\n\n"

// Voices lists the synthesized voices accepted by the realtime API.
var Voices = []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse", "marin", "cedar"}

// Definition describes one persona.
type Definition struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Voice        string `yaml:"voice"`
	Instructions string `yaml:"instructions"`
}

// SessionInstructions returns the full system prompt for a session with
// this persona.
func (d Definition) SessionInstructions() string {
	return englishPreamble + d.Instructions
}

func (d Definition) validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("agent: id must not be empty"))
	}
	if d.Name == "" {
		errs = append(errs, fmt.Errorf("agent %q: name must not be empty", d.ID))
	}
	if d.Instructions == "" {
		errs = append(errs, fmt.Errorf("agent %q: instructions must not be empty", d.ID))
	}
	if d.Voice != "" && !slices.Contains(Voices, d.Voice) {
		slog.Warn("agent: unrecognized voice, the upstream API may reject it",
			"agent", d.ID, "voice", d.Voice)
	}
	return errors.Join(errs...)
}

// Registry is an immutable, thread-safe persona lookup.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]Definition
	order     []string
	defaultID string
}

// NewRegistry builds a registry from the given personas. defaultID must
// name one of them; an empty defaultID falls back to DefaultAgentID
// when present, else the first persona.
func NewRegistry(defs []Definition, defaultID string) (*Registry, error) {
	if len(defs) == 0 {
		return nil, errors.New("agent: at least one persona is required")
	}
	r := &Registry{byID: make(map[string]Definition, len(defs))}
	var errs []error
	for _, d := range defs {
		if err := d.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := r.byID[d.ID]; dup {
			errs = append(errs, fmt.Errorf("agent %q: duplicate id", d.ID))
			continue
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	switch {
	case defaultID != "":
		if _, ok := r.byID[defaultID]; !ok {
			return nil, fmt.Errorf("agent: default %q not in catalog", defaultID)
		}
		r.defaultID = defaultID
	default:
		if _, ok := r.byID[DefaultAgentID]; ok {
			r.defaultID = DefaultAgentID
		} else {
			r.defaultID = r.order[0]
		}
	}
	return r, nil
}

// Get resolves id to a persona, falling back to the default for unknown
// or empty ids.
func (r *Registry) Get(id string) Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.byID[id]; ok {
		return d
	}
	if id != "" {
		slog.Warn("agent: unknown persona requested, using default", "requested", id, "default", r.defaultID)
	}
	return r.byID[r.defaultID]
}

// Lookup resolves id without the default fallback.
func (r *Registry) Lookup(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// All returns every persona in catalog order.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// DefaultID returns the id of the fallback persona.
func (r *Registry) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}
