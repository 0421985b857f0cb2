package tools

import (
	"errors"
	"fmt"
	"strings"
)

// hunkOp is one line of a diff hunk.
type hunkOp struct {
	op   byte // ' ' context, '-' delete, '+' add
	line string
}

type hunk struct {
	start int // old-file line from the @@ header, 0 when absent
	ops   []hunkOp
}

// old returns the lines the hunk expects to find in the file.
func (h hunk) old() []string {
	var lines []string
	for _, op := range h.ops {
		if op.op != '+' {
			lines = append(lines, op.line)
		}
	}
	return lines
}

// parseHunks reads the hunks of a unified diff. Text before the first @@
// and "\ No newline" markers are ignored. Models often drop the leading
// space of blank context lines, so an empty line is read as context.
func parseHunks(patch string) ([]hunk, error) {
	var (
		hunks   []hunk
		current *hunk
	)
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			hunks = append(hunks, hunk{})
			current = &hunks[len(hunks)-1]
			fmt.Sscanf(line, "@@ -%d", &current.start)
		case current == nil, strings.HasPrefix(line, `\`):
		case line == "":
			current.ops = append(current.ops, hunkOp{op: ' '})
		case line[0] == ' ' || line[0] == '-' || line[0] == '+':
			current.ops = append(current.ops, hunkOp{op: line[0], line: line[1:]})
		default:
			return nil, fmt.Errorf("unexpected patch line %q", line)
		}
	}

	out := hunks[:0]
	for _, h := range hunks {
		for len(h.ops) > 0 && h.ops[len(h.ops)-1] == (hunkOp{op: ' '}) {
			h.ops = h.ops[:len(h.ops)-1]
		}
		if len(h.ops) > 0 {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("patch has no hunks")
	}
	return out, nil
}

// applyUnifiedDiff applies patch to content. Hunks are located by their
// context rather than their line numbers, first comparing lines without
// trailing whitespace and then without any surrounding whitespace.
func applyUnifiedDiff(content, patch string) (string, error) {
	hunks, err := parseHunks(patch)
	if err != nil {
		return "", err
	}
	trailing := strings.HasSuffix(content, "\n")
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")

	from := 0
	for i, h := range hunks {
		lines, from, err = applyHunk(lines, h, from)
		if err != nil {
			return "", fmt.Errorf("hunk %d: %w", i+1, err)
		}
	}

	out := strings.Join(lines, "\n")
	if trailing {
		out += "\n"
	}
	return out, nil
}

// applyHunk applies h at the first match at or after from, falling back to
// a match anywhere. It returns the new lines and the index just past the
// applied hunk.
func applyHunk(lines []string, h hunk, from int) ([]string, int, error) {
	want := h.old()
	pos := -1
	if len(want) == 0 {
		pos = min(max(h.start, 0), len(lines))
	} else {
		for _, same := range []func(a, b string) bool{
			func(a, b string) bool { return strings.TrimRight(a, " \t") == strings.TrimRight(b, " \t") },
			func(a, b string) bool { return strings.TrimSpace(a) == strings.TrimSpace(b) },
		} {
			if pos = findLines(lines, want, from, same); pos < 0 {
				pos = findLines(lines, want, 0, same)
			}
			if pos >= 0 {
				break
			}
		}
	}
	if pos < 0 {
		return nil, 0, fmt.Errorf("context not found near line %d", h.start)
	}

	result := append([]string(nil), lines[:pos]...)
	at := pos
	for _, op := range h.ops {
		switch op.op {
		case ' ':
			result = append(result, lines[at])
			at++
		case '-':
			at++
		case '+':
			result = append(result, op.line)
		}
	}
	end := len(result)
	return append(result, lines[at:]...), end, nil
}

func findLines(lines, want []string, from int, same func(a, b string) bool) int {
	for i := from; i+len(want) <= len(lines); i++ {
		match := true
		for j, w := range want {
			if !same(lines[i+j], w) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
