package mission

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultQueueName is the queue a task type is enqueued to when its
// definition does not name one.
const DefaultQueueName = "statused"

// Definition is a task type: its ordered step declarations, the handlers
// bound to them, the factory that reconstructs instances from enqueued
// arguments, and the queue the type runs on.
//
// A definition is mutable while it is being built and frozen when it is
// registered. Step lists are never inherited between types; every type
// declares its own.
type Definition struct {
	name      string
	queueName string
	factory   FactoryFunc
	steps     []Step
	handlers  map[string]HandlerFunc
	frozen    bool
}

// DefinitionOption configures a Definition at construction time.
type DefinitionOption func(*Definition)

// WithQueueName sets the queue the task type is enqueued to.
func WithQueueName(name string) DefinitionOption {
	return func(d *Definition) {
		d.queueName = name
	}
}

// NewDefinition creates a task-type definition with the given name and
// instance factory.
func NewDefinition(name string, factory FactoryFunc, opts ...DefinitionOption) *Definition {
	d := &Definition{
		name:     name,
		factory:  factory,
		handlers: make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StepOption configures a declared step.
type StepOption func(*Step)

// WithDisplayMessage sets the human-readable label reported for the step.
func WithDisplayMessage(msg string) StepOption {
	return func(s *Step) {
		s.DisplayMessage = msg
	}
}

// DeclareStep appends a step to the definition's ordered step list and
// binds its handler. Declaration order is execution order; there is no
// removal or reordering.
func (d *Definition) DeclareStep(name string, handler HandlerFunc, opts ...StepOption) error {
	if d.frozen {
		return fmt.Errorf("declare step %q on %q: %w", name, d.name, ErrFrozen)
	}
	if name == "" || handler == nil {
		return fmt.Errorf("declare step %q on %q: %w", name, d.name, ErrInvalidDefinition)
	}
	if _, exists := d.handlers[name]; exists {
		return fmt.Errorf("declare step %q on %q: %w", name, d.name, ErrDuplicateStep)
	}
	step := Step{Name: name}
	for _, opt := range opts {
		opt(&step)
	}
	d.steps = append(d.steps, step)
	d.handlers[name] = handler
	return nil
}

// MustDeclareStep is DeclareStep that panics on error. Intended for
// task-type definition at program initialization.
func (d *Definition) MustDeclareStep(name string, handler HandlerFunc, opts ...StepOption) *Definition {
	if err := d.DeclareStep(name, handler, opts...); err != nil {
		panic(err)
	}
	return d
}

// Name returns the task type name.
func (d *Definition) Name() string { return d.name }

// QueueName returns the queue the type runs on, defaulting to
// DefaultQueueName when unset.
func (d *Definition) QueueName() string {
	if d.queueName == "" {
		return DefaultQueueName
	}
	return d.queueName
}

// Steps returns the full ordered step list as a copy.
func (d *Definition) Steps() []Step {
	out := make([]Step, len(d.steps))
	copy(out, d.steps)
	return out
}

// Handler returns the handler bound to the named step.
func (d *Definition) Handler(name string) (HandlerFunc, bool) {
	h, ok := d.handlers[name]
	return h, ok
}

// NewTask reconstructs a task instance from enqueued arguments via the
// definition's factory.
func (d *Definition) NewTask(args map[string]any) (Task, error) {
	task, err := d.factory(args)
	if err != nil {
		return nil, fmt.Errorf("create task %q: %w", d.name, err)
	}
	if task == nil {
		return nil, fmt.Errorf("create task %q: factory returned nil", d.name)
	}
	return task, nil
}

// freeze marks the definition immutable. Called on registration.
func (d *Definition) freeze() { d.frozen = true }

// Registry maps task type names to their frozen definitions. Registration
// is explicit: a type is bound to its queue configuration by a Register
// call and resolved by Lookup, never by generated subclassing or other
// process-wide mutable state.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty task-type registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a definition to the registry and freezes it. The
// definition must carry a name and a factory, and the name must be free.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.name == "" || def.factory == nil {
		return ErrInvalidDefinition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.name]; exists {
		return fmt.Errorf("register %q: %w", def.name, ErrAlreadyRegistered)
	}
	def.freeze()
	r.defs[def.name] = def
	return nil
}

// MustRegister is Register that panics on error. Intended for program
// initialization.
func (r *Registry) MustRegister(def *Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup resolves a task type by name.
func (r *Registry) Lookup(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("lookup %q: %w", name, ErrNotRegistered)
	}
	return def, nil
}

// Types returns the registered task type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
