package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies which part of an oversized output survives.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultObservationLimit applies to tools with no configured limit.
const DefaultObservationLimit = 20000

// Default character limits for the stock tools.
var DefaultToolCharLimits = map[string]int{
	"viewFile":        30000,
	"findInsideFiles": 10000,
	"findFileNames":   10000,
	"listFiles":       10000,
	"shell":           20000,
}

// Search tools keep their tail: the newest matches are as useful as the
// first ones and the head is usually noise.
var DefaultTruncationModes = map[string]TruncationMode{
	"findInsideFiles": TruncateTail,
	"findFileNames":   TruncateTail,
}

// Default line limits, applied after character truncation.
var DefaultToolLineLimits = map[string]int{
	"findInsideFiles": 200,
	"findFileNames":   500,
	"listFiles":       500,
	"shell":           256,
}

// TruncateOutput cuts output to maxChars, leaving a marker saying how much
// was removed.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	if mode == TruncateTail {
		return fmt.Sprintf("[output truncated: first %d characters removed]\n", removed) +
			output[len(output)-maxChars:]
	}
	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n[output truncated: %d characters removed from the middle, narrow the input to see them]\n", removed) +
		output[len(output)-(maxChars-half):]
}

// TruncateLines keeps the first and last lines when output exceeds maxLines.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	head := maxLines / 2
	tail := maxLines - head
	omitted := len(lines) - head - tail

	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tail:], "\n")
}

// TruncateToolOutput applies the character limit then the line limit for
// tool. Configured limits win over the defaults.
func TruncateToolOutput(output, tool string, charLimits, lineLimits map[string]int) string {
	maxChars, ok := charLimits[tool]
	if !ok {
		if maxChars, ok = DefaultToolCharLimits[tool]; !ok {
			maxChars = DefaultObservationLimit
		}
	}
	mode, ok := DefaultTruncationModes[tool]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, maxChars, mode)

	maxLines, ok := lineLimits[tool]
	if !ok {
		maxLines = DefaultToolLineLimits[tool]
	}
	return TruncateLines(result, maxLines)
}
