package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/martinemde/draftloop/agentloop"
)

// cancelledByUser is the tool output when a confirmation is declined.
const cancelledByUser = "Cancelled by user"

// FindInsideFiles searches file contents with grep: recursive, case
// insensitive, fixed strings, binary files skipped.
func FindInsideFiles(env *Environment) agentloop.Tool {
	return agentloop.Tool{
		Name:        "findInsideFiles",
		Description: "Search inside files and print the matching lines. e.g. findInsideFiles hello",
		Run: func(ctx context.Context, input, _ string) (string, error) {
			args, err := grepArgs(env, input)
			if err != nil {
				return "", err
			}
			return env.Run(ctx, "grep", args...)
		},
	}
}

// grepArgs turns tool input into a grep command line. If the last word
// names an existing path it is the search root, otherwise the remaining
// words form the search text and the working directory is searched. The
// working directory is never passed explicitly because --exclude-dir=.*
// would match it.
func grepArgs(env *Environment, input string) ([]string, error) {
	var flags, words []string
	for _, arg := range SplitArgs(input) {
		if strings.HasPrefix(arg, "-") && len(arg) > 1 {
			flags = append(flags, arg)
		} else {
			words = append(words, arg)
		}
	}
	if len(words) == 0 {
		return nil, errors.New("missing search text")
	}

	var root []string
	if len(words) > 1 {
		last := words[len(words)-1]
		if _, err := os.Stat(env.Resolve(last)); err == nil {
			if env.Resolve(last) != env.workDir {
				root = []string{last}
			}
			words = words[:len(words)-1]
		}
	}

	for _, f := range []string{"-r", "-i", "-I", "-F"} {
		if !slices.Contains(flags, f) {
			flags = append(flags, f)
		}
	}
	args := append(flags, "--exclude-dir=.*")
	for _, d := range env.excludeDirs {
		args = append(args, "--exclude-dir="+d)
	}
	args = append(args, "--", strings.Join(words, " "))
	return append(args, root...), nil
}

// FindFileNames lists files whose path matches any of the comma separated
// patterns at any depth. A pattern matches a prefix of the file name, so
// "main" finds main.go.
func FindFileNames(env *Environment) agentloop.Tool {
	return agentloop.Tool{
		Name:        "findFileNames",
		Description: "Find file names matching a name or pattern. e.g. findFileNames *.test.js",
		Run: func(ctx context.Context, input, _ string) (string, error) {
			matchers, err := compilePatterns(input)
			if err != nil {
				return "", err
			}
			matches, err := walkMatches(ctx, env, matchers)
			if err != nil {
				return "", err
			}
			return strings.Join(matches, "\n"), nil
		},
	}
}

func compilePatterns(input string) ([]glob.Glob, error) {
	var matchers []glob.Glob
	for _, pattern := range strings.Split(input, ",") {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		for _, expr := range []string{pattern + "*", "**/" + pattern + "*"} {
			g, err := glob.Compile(expr, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
			matchers = append(matchers, g)
		}
	}
	if len(matchers) == 0 {
		return nil, errors.New("missing file name pattern")
	}
	return matchers, nil
}

func walkMatches(ctx context.Context, env *Environment, matchers []glob.Glob) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(env.workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == env.workDir {
				return err
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != env.workDir && env.excluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(env.workDir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, g := range matchers {
			if g.Match(rel) {
				matches = append(matches, rel)
				break
			}
		}
		return nil
	})
	return matches, err
}

// ListFiles runs ls with the given arguments.
func ListFiles(env *Environment) agentloop.Tool {
	return agentloop.Tool{
		Name:        "listFiles",
		Description: "List files in a folder. e.g. listFiles folder1 folder2",
		Run: func(ctx context.Context, input, _ string) (string, error) {
			return env.Run(ctx, "ls", SplitArgs(input)...)
		},
	}
}

// ViewFile shows the numbered contents of comma separated files.
func ViewFile(env *Environment) agentloop.Tool {
	return agentloop.Tool{
		Name:        "viewFile",
		Description: "Shows the entire contents of the file. e.g. viewFile path/to/file",
		Run: func(ctx context.Context, input, _ string) (string, error) {
			var parts []string
			for _, name := range strings.Split(input, ",") {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				if err := ctx.Err(); err != nil {
					return "", err
				}
				parts = append(parts, viewOne(env, name))
			}
			if len(parts) == 0 {
				return "", errors.New("missing file path")
			}
			return strings.Join(parts, "\n\n"), nil
		},
	}
}

func viewOne(env *Environment, name string) string {
	info, err := os.Stat(env.Resolve(name))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return name + ": File not found"
	case err != nil:
		return name + ": " + err.Error()
	case info.IsDir():
		return name + ": is a directory, use listFiles"
	}
	content, err := env.ReadFile(name, 0, 0)
	if err != nil {
		return name + ": " + err.Error()
	}
	return name + "\n" + strings.TrimSuffix(content, "\n")
}

// Remove deletes files and folders after confirmation.
func Remove(env *Environment, p Prompter) agentloop.Tool {
	return confirmed(env, p, "rm", "Removes files and folders. e.g. rm file1 file2", func(args []string) []string {
		return append([]string{"-rf"}, args...)
	})
}

// Move renames files and folders after confirmation.
func Move(env *Environment, p Prompter) agentloop.Tool {
	return confirmed(env, p, "mv", "Moves files and folders. e.g. mv src/file dest/file", nil)
}

// Copy copies files and folders after confirmation.
func Copy(env *Environment, p Prompter) agentloop.Tool {
	return confirmed(env, p, "cp", "Copies files and folders. e.g. cp -r src/folder dest/folder", nil)
}

// confirmed builds a serial tool that runs program with the split input
// once the human agrees. Path arguments must stay inside the working
// directory.
func confirmed(env *Environment, p Prompter, program, description string, rewrite func([]string) []string) agentloop.Tool {
	return agentloop.Tool{
		Name:        program,
		Description: description,
		Serial:      true,
		Run: func(ctx context.Context, input, _ string) (string, error) {
			args := SplitArgs(input)
			if len(args) == 0 {
				return "", errors.New("missing arguments")
			}
			for _, arg := range args {
				if strings.HasPrefix(arg, "-") {
					continue
				}
				if !env.contains(arg) {
					return "", fmt.Errorf("%s is outside the working directory", arg)
				}
			}
			if rewrite != nil {
				args = rewrite(args)
			}

			ok, err := p.Confirm(ctx, fmt.Sprintf("Run %s %s?", program, strings.Join(args, " ")))
			if err != nil {
				return "", err
			}
			if !ok {
				return cancelledByUser, nil
			}
			return env.Run(ctx, program, args...)
		},
	}
}

func (e *Environment) contains(path string) bool {
	rel, err := filepath.Rel(e.workDir, e.Resolve(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Shell runs a shell command after confirmation. The exit code and a
// timeout notice are appended to the output.
func Shell(env *Environment, p Prompter) agentloop.Tool {
	return agentloop.Tool{
		Name:        "shell",
		Description: "Runs a shell command in the project folder. e.g. shell go test ./...",
		Serial:      true,
		Run: func(ctx context.Context, input, _ string) (string, error) {
			command := strings.TrimSpace(input)
			if command == "" {
				return "", errors.New("missing command")
			}
			ok, err := p.Confirm(ctx, "Run shell command: "+command+"?")
			if err != nil {
				return "", err
			}
			if !ok {
				return cancelledByUser, nil
			}

			result, err := env.Exec(ctx, command)
			if err != nil {
				return "", err
			}
			var sb strings.Builder
			sb.WriteString(result.Output())
			if result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[Command timed out after %s. Partial output is shown above.]", env.shellTimeout)
			} else if result.ExitCode != 0 {
				fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
			}
			return sb.String(), nil
		},
	}
}
