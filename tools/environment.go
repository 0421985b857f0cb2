package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// DefaultShellTimeout bounds a single shell command.
const DefaultShellTimeout = 2 * time.Minute

// defaultExcludeDirs are never searched by findInsideFiles or findFileNames.
var defaultExcludeDirs = []string{"node_modules", "dist", "out", "build", "venv"}

// ExecResult holds the result of a shell command.
type ExecResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	return combine(r.Stdout, r.Stderr)
}

func combine(stdout, stderr string) string {
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	}
	return stdout + "\n" + stderr
}

// Environment is the local directory tools operate in. Relative paths
// given to tools resolve against its working directory.
type Environment struct {
	workDir      string
	excludeDirs  []string
	shellTimeout time.Duration
}

// EnvOption configures an Environment.
type EnvOption func(*Environment)

// WithExcludeDirs adds directory names skipped by the search tools.
func WithExcludeDirs(dirs ...string) EnvOption {
	return func(e *Environment) {
		for _, d := range dirs {
			if d = strings.TrimSpace(d); d != "" {
				e.excludeDirs = append(e.excludeDirs, d)
			}
		}
	}
}

// WithShellTimeout overrides DefaultShellTimeout. Zero disables the limit.
func WithShellTimeout(d time.Duration) EnvOption {
	return func(e *Environment) { e.shellTimeout = d }
}

// NewEnvironment roots an Environment at workDir, or the process working
// directory when workDir is empty. The directory must exist.
func NewEnvironment(workDir string, opts ...EnvOption) (*Environment, error) {
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("tools: working directory: %w", err)
		}
		workDir = wd
	}
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("tools: working directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("tools: working directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tools: working directory %s is not a directory", abs)
	}

	e := &Environment{
		workDir:      abs,
		excludeDirs:  append([]string(nil), defaultExcludeDirs...),
		shellTimeout: DefaultShellTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Environment) WorkingDirectory() string { return e.workDir }

func (e *Environment) Platform() string { return runtime.GOOS }

func (e *Environment) OSVersion() string { return runtime.GOOS + "/" + runtime.GOARCH }

// ExcludeDirs returns the directory names skipped by search tools. Hidden
// directories are always skipped as well.
func (e *Environment) ExcludeDirs() []string {
	return append([]string(nil), e.excludeDirs...)
}

func (e *Environment) excluded(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	for _, d := range e.excludeDirs {
		if d == name {
			return true
		}
	}
	return false
}

// Resolve makes path absolute relative to the working directory.
func (e *Environment) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(e.workDir, path)
}

// ReadFile returns the file's lines prefixed with 1-based line numbers,
// starting at offset and returning at most limit lines (0 means all).
func (e *Environment) ReadFile(path string, offset, limit int) (string, error) {
	data, err := os.ReadFile(e.Resolve(path))
	if err != nil {
		return "", err
	}

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	start := 0
	if offset > 0 {
		start = offset - 1
	}
	if start >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String(), nil
}

// WriteFile replaces the file at path with content, creating parent
// directories as needed.
func (e *Environment) WriteFile(path, content string) error {
	abs := e.Resolve(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, []byte(content), 0o644)
}

// Run executes a program with arguments in the working directory. Stdout
// and stderr are joined; output written only to stderr is returned as an
// error. A non-zero exit status alone is not an error, so grep with no
// matches yields empty output.
func (e *Environment) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := e.command(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", fmt.Errorf("%s: %w", name, err)
	}

	out, errOut := stdout.String(), stderr.String()
	if out == "" && errOut != "" {
		return "", errors.New(strings.TrimSpace(errOut))
	}
	return combine(out, errOut), nil
}

// Exec runs command through the platform shell with the environment's
// shell timeout. A timed out command kills its whole process group.
func (e *Environment) Exec(ctx context.Context, command string) (*ExecResult, error) {
	if e.shellTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.shellTimeout)
		defer cancel()
	}

	shell, flag := "/bin/bash", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "cmd.exe", "/c"
	}
	cmd := e.command(ctx, shell, flag, command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			result.ExitCode = -1
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("exec: %w", err)
		}
	}
	return result, nil
}

// command builds a process in its own group with a filtered environment.
// Cancelling ctx kills the group, not just the leader.
func (e *Environment) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.workDir
	cmd.Env = filterEnvironment(os.Environ())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second
	return cmd
}

// sensitiveEnvSuffixes mark variables that never reach tool processes.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are passed through even if they match a sensitive suffix.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// filterEnvironment drops credentials from environ so that a model-chosen
// command cannot print them into the transcript.
func filterEnvironment(environ []string) []string {
	var filtered []string
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}
