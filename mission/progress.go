package mission

// Progress is the durable checkpoint record for one mission. It tracks the
// step currently in flight, the steps that have fully finished (in finish
// order), whether the whole mission is finished, and how many execution
// attempts ended in an error.
//
// Progress is the only state that survives across process boundaries. The
// engine mutates it in place; the job bridge persists it through the
// queue's status store at every step boundary.
//
// Invariants, maintained by every method:
//   - a step name appears in Completed at most once;
//   - Working, when set, is never simultaneously in Completed;
//   - Finished implies Working is empty.
type Progress struct {
	// Working is the step currently in flight, at most one.
	Working string `json:"working,omitempty"`

	// Completed lists fully finished steps in finish order.
	Completed []string `json:"completed"`

	// Finished is true once all steps completed and the final checkpoint
	// ran.
	Finished bool `json:"finished,omitempty"`

	// Failures counts execution attempts that ended in an error. It is
	// incremented once per failed attempt, not per failed step.
	Failures int `json:"failures"`
}

// NewProgress returns a fresh, empty Progress.
func NewProgress() *Progress {
	return &Progress{Completed: []string{}}
}

// IsComplete reports whether the named step has fully finished.
func (p *Progress) IsComplete(name string) bool {
	for _, done := range p.Completed {
		if done == name {
			return true
		}
	}
	return false
}

// Start marks the named step as in flight. A previously in-flight step
// with a different name is promoted to completed first: under the
// checkpoint protocol a step finishes when its successor starts (or when
// Finish runs). When the previously in-flight step is the same step, it
// is left in flight unchanged: a crash that interrupted it mid-run must
// re-run it in full, never silently count it as done.
//
// Starting a step reopens the record: the step is removed from Completed
// if it was there, and Finished is cleared, so the in-flight step is never
// simultaneously completed and a finished Progress never has a step in
// flight.
func (p *Progress) Start(name string) {
	if p.Working != "" && p.Working != name {
		p.complete(p.Working)
	}
	p.uncomplete(name)
	p.Working = name
	p.Finished = false
}

// StopWorking clears the in-flight step without marking it complete, so
// the step re-runs in full on the next attempt.
func (p *Progress) StopWorking() {
	p.Working = ""
}

// Finish flushes any remaining in-flight step into Completed and marks
// the mission finished. Finishing an already finished Progress is a
// no-op.
func (p *Progress) Finish() {
	if p.Working != "" {
		p.complete(p.Working)
		p.Working = ""
	}
	p.Finished = true
}

// Clone returns a deep copy of the Progress.
func (p *Progress) Clone() *Progress {
	out := *p
	out.Completed = make([]string, len(p.Completed))
	copy(out.Completed, p.Completed)
	return &out
}

// complete appends a step to Completed unless it is already there.
func (p *Progress) complete(name string) {
	if !p.IsComplete(name) {
		p.Completed = append(p.Completed, name)
	}
}

// uncomplete removes a step from Completed, if present.
func (p *Progress) uncomplete(name string) {
	for i, done := range p.Completed {
		if done == name {
			p.Completed = append(p.Completed[:i], p.Completed[i+1:]...)
			return
		}
	}
}
