package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/martinemde/draftloop/agentloop"
	"github.com/martinemde/draftloop/unifiedllm"
)

// Files shorter than fullRewriteLines are rewritten whole. Longer files
// are shown with line numbers and changed through a unified diff.
const fullRewriteLines = 200

const (
	fullFormat = "Output the entire file with no commentary and no changes to other files. Your output will be written directly to disk."
	diffFormat = `Output only a unified diff with no commentary and no changes to other files. Your output will be applied as a patch. e.g.
@@ -20,7 +20,6 @@
 context2
 context3
-  line to be deleted
+  line to be added
  context4
@@ -88,6 +87,11 @@`
)

// helpPrefix starts a reply in which the model declines an edit.
const helpPrefix = "HELP:"

// Editor asks a completion model to write file contents for the editing
// tools. Requests go through Client, so its middleware applies.
type Editor struct {
	Client   unifiedllm.Completer
	Provider string
	Model    string
}

// CreateFile writes a new file from a description.
func CreateFile(env *Environment, p Prompter, ed Editor) agentloop.Tool {
	return agentloop.Tool{
		Name:        "createFile",
		Description: "Uses AI to create a new file according to instructions. e.g. createFile path/to/foo.go detailed description of what to put in it, including function names and logic",
		Serial:      true,
		Run: func(ctx context.Context, input, goal string) (string, error) {
			file, change := splitOnce(input)
			if file == "" || change == "" {
				return "", errors.New("usage: createFile path description")
			}
			return ed.apply(ctx, env, p, fileChange{goal: goal, dest: file, change: change})
		},
	}
}

// EditFile rewrites an existing file according to instructions.
func EditFile(env *Environment, p Prompter, ed Editor) agentloop.Tool {
	return agentloop.Tool{
		Name:        "editFile",
		Description: "Uses AI to edit the file according to instructions. e.g. editFile path/to/foo.go detailed description of edits to make so AI knows what to do",
		Serial:      true,
		Run: func(ctx context.Context, input, goal string) (string, error) {
			file, change := splitOnce(input)
			if file == "" || change == "" {
				return "", errors.New("usage: editFile path description")
			}
			return ed.apply(ctx, env, p, fileChange{goal: goal, source: file, dest: file, change: change})
		},
	}
}

// CloneFile writes an edited copy of a file to a new path.
func CloneFile(env *Environment, p Prompter, ed Editor) agentloop.Tool {
	return agentloop.Tool{
		Name:        "cloneFile",
		Description: "Clones the source file and uses AI to edit it according to instructions. e.g. cloneFile source/file dest/file rename foo to bar",
		Serial:      true,
		Run: func(ctx context.Context, input, goal string) (string, error) {
			source, rest := splitOnce(input)
			dest, change := splitOnce(rest)
			if source == "" || dest == "" || change == "" {
				return "", errors.New("usage: cloneFile source dest description")
			}
			return ed.apply(ctx, env, p, fileChange{goal: goal, source: source, dest: dest, change: change})
		},
	}
}

// Editing returns createFile, editFile and cloneFile.
func Editing(env *Environment, p Prompter, ed Editor) []agentloop.Tool {
	return []agentloop.Tool{CreateFile(env, p, ed), EditFile(env, p, ed), CloneFile(env, p, ed)}
}

type fileChange struct {
	goal   string
	source string // empty for a new file
	dest   string
	change string
}

// apply asks the model for the changed file and writes it to c.dest once
// the human agrees. Problems the model can act on are returned as output.
func (ed Editor) apply(ctx context.Context, env *Environment, p Prompter, c fileChange) (string, error) {
	if ed.Client == nil {
		return "", errors.New("file editing needs a completion client")
	}
	for _, path := range []string{c.source, c.dest} {
		if path != "" && !env.contains(path) {
			return "", fmt.Errorf("%s is outside the working directory", path)
		}
	}

	var content string
	if c.source != "" {
		info, err := os.Stat(env.Resolve(c.source))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Sprintf("File %s does not exist.", c.source), nil
		case err != nil:
			return "", err
		case info.IsDir():
			return fmt.Sprintf("%s is a directory.", c.source), nil
		}
		data, err := os.ReadFile(env.Resolve(c.source))
		if err != nil {
			return "", err
		}
		content = string(data)
	}

	var lines []string
	if content != "" {
		lines = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	}
	asDiff := len(lines) >= fullRewriteLines
	system := fullFormat
	if asDiff {
		system = diffFormat
	}
	resp, err := ed.Client.Complete(ctx, unifiedllm.Request{
		Provider: ed.Provider,
		Model:    ed.Model,
		Messages: []unifiedllm.Message{
			unifiedllm.SystemMessage(system),
			unifiedllm.UserMessage(editPrompt(c, lines, asDiff)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("edit %s: %w", c.dest, err)
	}

	reply := strings.TrimSpace(resp.Text)
	if rest, ok := strings.CutPrefix(reply, helpPrefix); ok {
		return "Unable to edit file, the AI needs: " + strings.TrimSpace(rest), nil
	}

	updated := fileContents(resp.Text)
	if !asDiff && updated == "" {
		return fmt.Sprintf("AI completion returned no contents for %s.", c.dest), nil
	}
	if asDiff {
		if !strings.HasPrefix(reply, "@@") {
			return fmt.Sprintf("AI completion did not return a valid patch for %s.", c.dest), nil
		}
		if updated, err = applyUnifiedDiff(content, reply); err != nil {
			return patchFailed(c.dest, reply, err), nil
		}
	}

	ok, err := p.Confirm(ctx, fmt.Sprintf("Write %s (%d lines)?", c.dest, strings.Count(updated, "\n")))
	if err != nil {
		return "", err
	}
	if !ok {
		return cancelledByUser, nil
	}
	if err := env.WriteFile(c.dest, updated); err != nil {
		return "", err
	}
	return "Successfully edited file.", nil
}

func editPrompt(c fileChange, lines []string, numbered bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s contents:\n\n", c.dest)
	for i, line := range lines {
		if numbered {
			fmt.Fprintf(&sb, "%d: ", i+1)
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "\n---\nOverall goal: %s\n\nApply the following changes to %s: %s.\n\n", c.goal, c.dest, c.change)
	sb.WriteString("If you are unable to make the changes or need more information, respond " + helpPrefix + " <detailed question or reason>\n")
	return sb.String()
}

// fileContents turns a whole-file reply into file contents: a markdown
// fence around the reply is removed and the text ends with one newline.
func fileContents(reply string) string {
	text := strings.Trim(reply, "\n")
	if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, "```") && strings.HasSuffix(trimmed, "```") {
		if i := strings.IndexByte(trimmed, '\n'); i >= 0 && i < len(trimmed)-3 {
			text = strings.Trim(trimmed[i+1:len(trimmed)-3], "\n")
		}
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return text + "\n"
}

// patchFailed saves the rejected patch so the human can apply it by hand.
func patchFailed(dest, patch string, cause error) string {
	msg := fmt.Sprintf("Unable to apply patch to %s: %v.", dest, cause)
	f, err := os.CreateTemp("", filepath.Base(dest)+"-*.patch")
	if err != nil {
		return msg
	}
	defer f.Close()
	if _, err := f.WriteString(patch + "\n"); err != nil {
		return msg
	}
	return msg + " The patch was saved to " + f.Name()
}

// splitOnce splits s at the first space, trimming both halves.
func splitOnce(s string) (string, string) {
	head, tail, _ := strings.Cut(strings.TrimSpace(s), " ")
	return head, strings.TrimSpace(tail)
}
