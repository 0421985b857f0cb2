package agentloop

import (
	"fmt"
	"iter"
	"slices"
	"sync"
)

// ActionRequest is one tool invocation extracted from a model response.
type ActionRequest struct {
	Tool  string `json:"tool"`
	Input string `json:"input,omitempty"`
}

// ObservationStatus records how an action was resolved.
type ObservationStatus string

const (
	ObservationOK       ObservationStatus = "ok"
	ObservationError    ObservationStatus = "error"
	ObservationNotFound ObservationStatus = "not_found"
	ObservationSkipped  ObservationStatus = "skipped"
	// ObservationNote carries context not produced by a tool.
	ObservationNote     ObservationStatus = "note"
)

// Observation is the result of dispatching one ActionRequest.
type Observation struct {
	Tool   string            `json:"tool"`
	Input  string            `json:"input,omitempty"`
	Output string            `json:"output"`
	Status ObservationStatus `json:"status"`
}

// String renders the observation the way the model sees it.
func (o Observation) String() string {
	switch o.Status {
	case ObservationNote:
		return o.Output
	case ObservationNotFound:
		return fmt.Sprintf("Tool %s was not found", o.Tool)
	case ObservationError:
		return fmt.Sprintf("Error running tool %s with input %s\n%s", o.Tool, o.Input, o.Output)
	case ObservationSkipped:
		return fmt.Sprintf("Skipped tool %s with input %s: %s", o.Tool, o.Input, o.Output)
	default:
		out := o.Output
		if out == "" {
			out = "Empty output returned"
		}
		return fmt.Sprintf("Ran tool %s with input %s\n%s", o.Tool, o.Input, out)
	}
}

// Step is the record of one loop iteration.
type Step struct {
	Thought       string          `json:"thought,omitempty"`
	Action        string          `json:"action,omitempty"`
	ParsedActions []ActionRequest `json:"parsed_actions,omitempty"`
	FinalAnswer   string          `json:"final_answer,omitempty"`
	Observations  []Observation   `json:"observations,omitempty"`

	// ParseError holds the action parse failure, if any. It is rendered
	// into the next context so the model can correct itself.
	ParseError string `json:"parse_error,omitempty"`
	Forced     bool   `json:"forced,omitempty"`
	FromUser   bool   `json:"from_user,omitempty"`
}

// HasAction reports whether the response contained an action section.
func (s Step) HasAction() bool {
	return s.Action != ""
}

// UsedTool reports whether any parsed action invokes name.
func (s Step) UsedTool(name string) bool {
	for _, a := range s.ParsedActions {
		if a.Tool == name {
			return true
		}
	}
	return false
}

func (s Step) clone() Step {
	s.ParsedActions = slices.Clone(s.ParsedActions)
	s.Observations = slices.Clone(s.Observations)
	return s
}

// Transcript is the append-only, oldest-first sequence of steps for a run.
// Readers choose the direction at iteration time.
type Transcript struct {
	mu    sync.RWMutex
	steps []Step
}

// NewTranscript returns a transcript holding copies of steps.
func NewTranscript(steps ...Step) *Transcript {
	t := &Transcript{}
	for _, s := range steps {
		t.Append(s)
	}
	return t
}

// Append adds a copy of s as the newest step.
func (t *Transcript) Append(s Step) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, s.clone())
}

// Len returns the number of steps.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.steps)
}

// At returns the step at chronological index i.
func (t *Transcript) At(i int) Step {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.steps[i].clone()
}

// Last returns the newest step and false when the transcript is empty.
func (t *Transcript) Last() (Step, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.steps) == 0 {
		return Step{}, false
	}
	return t.steps[len(t.steps)-1].clone(), true
}

// view returns the steps appended so far. Append never writes inside the
// returned length, so the slice can be read without the lock.
func (t *Transcript) view() []Step {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.steps[:len(t.steps):len(t.steps)]
}

// All yields steps oldest-first with their chronological index. Steps
// appended during iteration are not visited.
func (t *Transcript) All() iter.Seq2[int, Step] {
	return func(yield func(int, Step) bool) {
		for i, s := range t.view() {
			if !yield(i, s.clone()) {
				return
			}
		}
	}
}

// Backward yields steps newest-first with their chronological index.
// Steps appended during iteration are not visited.
func (t *Transcript) Backward() iter.Seq2[int, Step] {
	return func(yield func(int, Step) bool) {
		steps := t.view()
		for i := len(steps) - 1; i >= 0; i-- {
			if !yield(i, steps[i].clone()) {
				return
			}
		}
	}
}

// Steps returns a copy of every step, oldest-first.
func (t *Transcript) Steps() []Step {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Step, len(t.steps))
	for i, s := range t.steps {
		out[i] = s.clone()
	}
	return out
}
