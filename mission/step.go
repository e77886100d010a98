package mission

import (
	"context"
	"strings"
	"unicode"
)

// Step is one named, ordered unit of work within a mission.
// Steps are declared once, in call order, at task-type definition time and
// are immutable thereafter. Declaration order is the sole execution order.
type Step struct {
	// Name identifies the step within its task type.
	Name string `json:"name"`

	// DisplayMessage is an optional human-readable label reported to
	// observers instead of the title-cased step name.
	DisplayMessage string `json:"display_message,omitempty"`
}

// Label returns the human-readable label for the step: the explicit
// DisplayMessage when set, otherwise the title-cased step name
// ("fetch_data" becomes "Fetch Data").
func (s Step) Label() string {
	if s.DisplayMessage != "" {
		return s.DisplayMessage
	}
	return titleize(s.Name)
}

// titleize converts a step identifier into a display label by splitting on
// underscores and spaces and capitalizing each word. Hyphens are part of
// the word ("re-run" stays "Re-run").
func titleize(name string) string {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == ' '
	})
	for i, f := range fields {
		runes := []rune(f)
		runes[0] = unicode.ToUpper(runes[0])
		fields[i] = string(runes)
	}
	return strings.Join(fields, " ")
}

// Status is the capability handed to every step invocation for reading and
// writing arbitrary key-value pairs in the job's persisted status blob.
// It replaces implicit closure capture with explicit dependency injection:
// the caller decides what store backs it, the step only sees get/set.
type Status interface {
	// Get reads a single key from the status blob. A missing key yields
	// (nil, nil).
	Get(ctx context.Context, key string) (any, error)

	// Set merges a single key-value pair into the status blob.
	Set(ctx context.Context, key string, value any) error
}

// Task is one execution attempt's instance of a mission. Instances are
// constructed per attempt from serialized arguments and own no persistent
// state; everything that must survive the attempt lives in Progress or in
// the status blob.
type Task interface {
	// Definition returns the task type this instance belongs to.
	Definition() *Definition
}

// StepOverrider is an optional Task extension: when implemented and the
// returned list is non-empty, it takes precedence over the definition's
// declared steps for this instance.
type StepOverrider interface {
	OverrideSteps() []Step
}

// HandlerFunc executes one step of a task instance. Handlers receive the
// instance and the status capability; they report progress only through
// their error return and the status blob.
type HandlerFunc func(ctx context.Context, task Task, status Status) error

// FactoryFunc reconstructs a task instance from enqueued arguments.
type FactoryFunc func(args map[string]any) (Task, error)
