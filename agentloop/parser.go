package agentloop

import (
	"strings"
	"unicode"
)

type section int

const (
	sectionThought section = iota
	sectionAction
	sectionFinalAnswer
)

// Parser splits a model response into a Step. A Parser holds no state
// between calls.
type Parser struct {
	Labels Labels
	// StopTool ends action parsing once seen; models tend to invent it.
	StopTool string
}

// Parse segments response by line-leading labels. Unlabeled lines extend
// the current section. A line starting with the observation label ends the
// response, since anything after it was invented by the model.
//
// When the action section cannot be parsed the returned Step carries
// ParseError and no ParsedActions, and err is an *ActionParseError.
func (p Parser) Parse(response string) (Step, error) {
	var (
		step    Step
		mode    = sectionThought
		buffer  []string
		fields  = map[section]*string{sectionThought: &step.Thought, sectionAction: &step.Action, sectionFinalAnswer: &step.FinalAnswer}
		prefix  = map[section]string{sectionThought: p.Labels.Thought + ":", sectionAction: p.Labels.Action + ":", sectionFinalAnswer: p.Labels.FinalAnswer + ":"}
		observe = p.Labels.Observation + ":"
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(buffer, "\n"))
		buffer = buffer[:0]
		if text == "" {
			return
		}
		field := fields[mode]
		if *field != "" {
			*field += "\n"
		}
		*field += text
	}

lines:
	for _, line := range strings.Split(response, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, observe) {
			break
		}
		for _, next := range []section{sectionFinalAnswer, sectionAction, sectionThought} {
			if rest, ok := strings.CutPrefix(line, prefix[next]); ok {
				flush()
				mode = next
				if rest = strings.TrimSpace(rest); rest != "" {
					buffer = append(buffer, rest)
				}
				continue lines
			}
		}
		buffer = append(buffer, line)
	}
	flush()

	if step.Action == "" {
		return step, nil
	}
	actions, err := ParseActions(step.Action, p.StopTool)
	if err != nil {
		step.ParseError = err.Error() + ". Write one action per line as: - toolName input"
		return step, err
	}
	step.ParsedActions = actions
	return step, nil
}

// ParseForcedAnswer extracts the answer from a forced-completion response,
// whose prompt already ends with the final answer label.
func (p Parser) ParseForcedAnswer(response string) string {
	answer := strings.TrimSpace(response)
	if rest, ok := strings.CutPrefix(answer, p.Labels.FinalAnswer+":"); ok {
		answer = strings.TrimSpace(rest)
	}
	return answer
}

// ParseActions splits an action section into invocations, one per
// non-empty line:
//
//	- toolName input
//	toolName: input
//	"toolName input"
//
// Parsing stops right after stopTool. If any line yields no tool name the
// whole section is rejected.
func ParseActions(action, stopTool string) ([]ActionRequest, error) {
	var actions []ActionRequest
	for _, raw := range strings.Split(action, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		// A bare "-" is a bullet whose tool name is missing.
		if line == "-" || strings.HasPrefix(line, "- ") {
			line = strings.TrimSpace(line[1:])
		}
		line = unquote(line)

		tool, input := splitFirstSpace(line)
		tool = strings.TrimSuffix(unquote(strings.TrimSuffix(tool, ":")), ":")
		if tool == "" {
			return nil, &ActionParseError{Line: raw, Reason: "missing tool name"}
		}
		actions = append(actions, ActionRequest{Tool: tool, Input: unquoteToken(input)})
		if stopTool != "" && tool == stopTool {
			return actions, nil
		}
	}
	if len(actions) == 0 {
		return nil, &ActionParseError{Reason: "no actions found"}
	}
	return actions, nil
}

func splitFirstSpace(s string) (string, string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func isQuote(c byte) bool { return c == '"' || c == '\'' || c == '`' }

// unquote removes one pair of matching surrounding quotes.
func unquote(s string) string {
	if len(s) >= 2 && isQuote(s[0]) && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// unquoteToken unquotes s only when it is a single quoted token, so inputs
// like `"a" "b"` keep their quotes for the tool's own argument splitting.
func unquoteToken(s string) string {
	inner := unquote(s)
	if inner == s || strings.IndexByte(inner, s[0]) >= 0 {
		return s
	}
	return inner
}
