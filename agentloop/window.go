package agentloop

import (
	"slices"
	"strings"
)

// observationTooLong replaces an observation that cannot fit the
// remaining budget.
const observationTooLong = "output too long to fit"

// WindowBuilder packs a transcript into a bounded context body.
type WindowBuilder struct {
	Labels  Labels
	Counter UnitCounter
}

// Window is the result of one Build.
type Window struct {
	Text     string
	Included int
	Units    int
}

// Build walks the transcript newest-first and keeps steps while they fit
// budget, then emits the kept steps oldest-first. An unfittable newest step
// is a ContextOverflowError; an unfittable older step ends the walk.
func (b WindowBuilder) Build(t *Transcript, budget int) (Window, error) {
	counter := b.Counter
	if counter == nil {
		counter = ApproxTokenCounter{}
	}

	var blocks []string
	used := 0
	newest := true
	for _, step := range t.Backward() {
		block := b.renderStep(step, budget-used, counter)
		units := counter.Count(block)
		if used+units > budget {
			if newest {
				return Window{}, &ContextOverflowError{Units: units, Budget: budget}
			}
			break
		}
		newest = false
		used += units
		blocks = append(blocks, block)
	}

	slices.Reverse(blocks)
	return Window{Text: strings.Join(blocks, ""), Included: len(blocks), Units: used}, nil
}

// renderStep renders one step. Observation lines that alone exceed
// remaining are replaced by a placeholder so the step keeps its shape.
func (b WindowBuilder) renderStep(s Step, remaining int, counter UnitCounter) string {
	var lines []string
	if s.Thought != "" {
		lines = append(lines, b.Labels.Thought+": "+s.Thought)
	}
	if s.Action != "" {
		lines = append(lines, b.Labels.Action+": "+s.Action)
	}
	if s.ParseError != "" {
		lines = append(lines, b.observationLine(s.ParseError, remaining, counter))
	}
	for _, o := range s.Observations {
		lines = append(lines, b.observationLine(o.String(), remaining, counter))
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func (b WindowBuilder) observationLine(text string, remaining int, counter UnitCounter) string {
	line := b.Labels.Observation + ": " + text
	if counter.Count(line) > remaining {
		return b.Labels.Observation + ": " + observationTooLong
	}
	return line
}
