package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024

// projectDocFiles are instruction files loaded from every directory between
// the repository root and the working directory.
var projectDocFiles = []string{"AGENTS.md", ".draftloop/instructions.md"}

// SystemContext describes the environment to the model: platform facts,
// project instructions and git state. Sections that do not apply are left
// out.
func SystemContext(ctx context.Context, env *Environment, model string) string {
	sections := []string{EnvironmentContext(ctx, env, model, time.Now())}
	if docs := ProjectDocs(ctx, env.WorkingDirectory()); docs != "" {
		sections = append(sections, docs)
	}
	if git := GitContext(ctx, env.WorkingDirectory()); git != "" {
		sections = append(sections, git)
	}
	return strings.Join(sections, "\n\n")
}

// EnvironmentContext renders the <environment> block.
func EnvironmentContext(ctx context.Context, env *Environment, model string, now time.Time) string {
	workDir := env.WorkingDirectory()
	root := gitRoot(ctx, workDir)

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", root != "")
	if root != "" {
		if branch := gitOutput(ctx, workDir, "rev-parse", "--abbrev-ref", "HEAD"); branch != "" {
			fmt.Fprintf(&sb, "Git branch: %s\n", branch)
		}
	}
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	fmt.Fprintf(&sb, "OS version: %s\n", env.OSVersion())
	fmt.Fprintf(&sb, "Today's date: %s\n", now.Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// ProjectDocs loads instruction files from the repository root down to
// workDir, capped at 32KB in total.
func ProjectDocs(ctx context.Context, workDir string) string {
	root := gitRoot(ctx, workDir)
	if root == "" {
		root = workDir
	}

	var docs []string
	total := 0
	for _, dir := range pathHierarchy(root, workDir) {
		for _, name := range projectDocFiles {
			content, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			remaining := maxProjectDocBytes - total
			if remaining <= 0 {
				docs = append(docs, "[Project instructions truncated at 32KB]")
				return strings.Join(docs, "\n\n---\n\n")
			}
			text := string(content)
			if len(text) > remaining {
				text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
			}
			docs = append(docs, fmt.Sprintf("# %s (from %s)\n\n%s", name, dir, text))
			total += len(text)
		}
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// GitContext summarizes the branch, dirty file count and recent commits.
// It returns "" outside a git repository.
func GitContext(ctx context.Context, workDir string) string {
	root := gitRoot(ctx, workDir)
	if root == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<git_context>\n")
	if branch := gitOutput(ctx, root, "rev-parse", "--abbrev-ref", "HEAD"); branch != "" {
		fmt.Fprintf(&sb, "Branch: %s\n", branch)
	}
	if status := gitOutput(ctx, root, "status", "--short"); status != "" {
		fmt.Fprintf(&sb, "Modified/untracked files: %d\n", len(strings.Split(status, "\n")))
	}
	if log := gitOutput(ctx, root, "log", "--oneline", "-10"); log != "" {
		sb.WriteString("Recent commits:\n")
		sb.WriteString(log)
		sb.WriteString("\n")
	}
	sb.WriteString("</git_context>")
	return sb.String()
}

// pathHierarchy returns root, target and every directory between them.
// A target outside root yields just root.
func pathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	dirs := []string{root}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return dirs
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func gitRoot(ctx context.Context, dir string) string {
	return gitOutput(ctx, dir, "rev-parse", "--show-toplevel")
}

// gitOutput returns trimmed stdout, or "" if git fails.
func gitOutput(ctx context.Context, dir string, args ...string) string {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
