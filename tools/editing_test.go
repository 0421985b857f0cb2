package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/martinemde/draftloop/unifiedllm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEditor(replies ...string) (Editor, *unifiedllm.FakeAdapter) {
	fake := unifiedllm.NewFakeAdapter(replies...)
	return Editor{Client: fake, Provider: "fake", Model: "gpt-4"}, fake
}

func readWorkFile(t *testing.T, env *Environment, name string) string {
	t.Helper()
	data, err := os.ReadFile(env.Resolve(name))
	require.NoError(t, err)
	return string(data)
}

func numberedLines(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	return sb.String()
}

func TestEditFileRewritesSmallFile(t *testing.T) {
	env := newTestEnv(t, projectFiles)
	ed, fake := fakeEditor("```go\npackage main\n\nfunc main() {}\n```")
	var asked []string
	p := recordingPrompter{confirm: true, asked: &asked}

	out, err := EditFile(env, p, ed).Run(context.Background(), "main.go remove the println", "tidy main")
	require.NoError(t, err)
	assert.Equal(t, "Successfully edited file.", out)
	assert.Equal(t, "package main\n\nfunc main() {}\n", readWorkFile(t, env, "main.go"))
	assert.Equal(t, []string{"Write main.go (3 lines)?"}, asked)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "fake", reqs[0].Provider)
	assert.Equal(t, fullFormat, reqs[0].Messages[0].Content)
	prompt := reqs[0].LastUserMessage()
	assert.Contains(t, prompt, "main.go contents:\n\npackage main\n")
	assert.Contains(t, prompt, "Overall goal: tidy main")
	assert.Contains(t, prompt, "Apply the following changes to main.go: remove the println.")
}

func TestEditFilePatchesLargeFile(t *testing.T) {
	env := newTestEnv(t, map[string]string{"big.txt": numberedLines(250)})
	ed, fake := fakeEditor("@@ -99,3 +99,3 @@\n line 99\n-line 100\n+line one hundred\n line 101\n")
	var asked []string

	out, err := EditFile(env, recordingPrompter{confirm: true, asked: &asked}, ed).Run(context.Background(), "big.txt spell out 100", "")
	require.NoError(t, err)
	assert.Equal(t, "Successfully edited file.", out)

	lines := strings.Split(strings.TrimSuffix(readWorkFile(t, env, "big.txt"), "\n"), "\n")
	require.Len(t, lines, 250)
	assert.Equal(t, []string{"line 99", "line one hundred", "line 101"}, lines[98:101])
	assert.Equal(t, []string{"Write big.txt (250 lines)?"}, asked)

	req := fake.Requests()[0]
	assert.Equal(t, diffFormat, req.Messages[0].Content)
	assert.Contains(t, req.LastUserMessage(), "\n100: line 100\n")
}

func TestEditFileModelReplies(t *testing.T) {
	big := numberedLines(fullRewriteLines)
	tests := []struct {
		name  string
		file  string
		reply string
		want  string
	}{
		{"model asks for help", "main.go", "HELP: which function should change?", "Unable to edit file, the AI needs: which function should change?"},
		{"empty rewrite", "main.go", "  \n", "AI completion returned no contents for main.go."},
		{"reply is not a patch", "big.txt", "line 1 is fine", "AI completion did not return a valid patch for big.txt."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, map[string]string{"main.go": projectFiles["main.go"], "big.txt": big})
			ed, _ := fakeEditor(tt.reply)
			var asked []string

			out, err := EditFile(env, recordingPrompter{confirm: true, asked: &asked}, ed).Run(context.Background(), tt.file+" change it", "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
			assert.Empty(t, asked, "nothing is written, so nothing is confirmed")
		})
	}
}

func TestEditFilePatchThatDoesNotApply(t *testing.T) {
	env := newTestEnv(t, map[string]string{"big.txt": numberedLines(300)})
	ed, _ := fakeEditor("@@ -10,2 +10,2 @@\n-no such line\n+replacement\n")

	out, err := EditFile(env, StaticPrompter{Confirmed: true}, ed).Run(context.Background(), "big.txt fix it", "")
	require.NoError(t, err)
	assert.Contains(t, out, "Unable to apply patch to big.txt: hunk 1: context not found near line 10.")
	assert.Contains(t, out, "The patch was saved to ")
	assert.Equal(t, numberedLines(300), readWorkFile(t, env, "big.txt"))

	saved := strings.TrimSpace(out[strings.LastIndex(out, " ")+1:])
	t.Cleanup(func() { os.Remove(saved) })
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-no such line")
}

func TestEditFileDeclined(t *testing.T) {
	env := newTestEnv(t, projectFiles)
	ed, _ := fakeEditor("package main\n")

	out, err := EditFile(env, StaticPrompter{}, ed).Run(context.Background(), "main.go empty it", "")
	require.NoError(t, err)
	assert.Equal(t, cancelledByUser, out)
	assert.Equal(t, projectFiles["main.go"], readWorkFile(t, env, "main.go"))
}

func TestEditFileMissingOrOutside(t *testing.T) {
	env := newTestEnv(t, projectFiles)
	ed, fake := fakeEditor()
	p := StaticPrompter{Confirmed: true}

	out, err := EditFile(env, p, ed).Run(context.Background(), "nope.go add a func", "")
	require.NoError(t, err)
	assert.Equal(t, "File nope.go does not exist.", out)

	out, err = EditFile(env, p, ed).Run(context.Background(), "internal change it", "")
	require.NoError(t, err)
	assert.Equal(t, "internal is a directory.", out)

	_, err = EditFile(env, p, ed).Run(context.Background(), "../outside.go change it", "")
	assert.ErrorContains(t, err, "outside the working directory")

	_, err = CloneFile(env, p, ed).Run(context.Background(), "main.go /tmp/copy.go rename", "")
	assert.ErrorContains(t, err, "outside the working directory")

	_, err = EditFile(env, p, ed).Run(context.Background(), "main.go", "")
	assert.ErrorContains(t, err, "usage: editFile")

	assert.Empty(t, fake.Requests())
}

func TestCreateFile(t *testing.T) {
	env := newTestEnv(t, nil)
	ed, fake := fakeEditor("package pkg\n\nfunc Hello() string { return \"hi\" }")

	out, err := CreateFile(env, StaticPrompter{Confirmed: true}, ed).Run(context.Background(), "pkg/hello.go a Hello function returning hi", "greet")
	require.NoError(t, err)
	assert.Equal(t, "Successfully edited file.", out)
	assert.Equal(t, "package pkg\n\nfunc Hello() string { return \"hi\" }\n", readWorkFile(t, env, "pkg/hello.go"))
	assert.Contains(t, fake.Requests()[0].LastUserMessage(), "pkg/hello.go contents:\n\n\n---")
}

func TestCloneFile(t *testing.T) {
	env := newTestEnv(t, projectFiles)
	ed, fake := fakeEditor("package db\n\n// hello from cache\n")

	out, err := CloneFile(env, StaticPrompter{Confirmed: true}, ed).Run(context.Background(), "internal/db/db.go internal/cache/cache.go rename db to cache", "")
	require.NoError(t, err)
	assert.Equal(t, "Successfully edited file.", out)
	assert.Equal(t, "package db\n\n// hello from cache\n", readWorkFile(t, env, filepath.Join("internal", "cache", "cache.go")))
	assert.Equal(t, projectFiles["internal/db/db.go"], readWorkFile(t, env, "internal/db/db.go"))

	prompt := fake.Requests()[0].LastUserMessage()
	assert.Contains(t, prompt, "internal/cache/cache.go contents:\n\npackage db\n")
	assert.Contains(t, prompt, "Apply the following changes to internal/cache/cache.go: rename db to cache.")
}

func TestEditingNeedsClient(t *testing.T) {
	env := newTestEnv(t, projectFiles)
	_, err := EditFile(env, StaticPrompter{Confirmed: true}, Editor{}).Run(context.Background(), "main.go change", "")
	assert.ErrorContains(t, err, "completion client")
}

func TestFileContents(t *testing.T) {
	tests := []struct{ reply, want string }{
		{"package main", "package main\n"},
		{"\n\npackage main\n\n\n", "package main\n"},
		{"```go\npackage main\n```", "package main\n"},
		{"```\n  indented\n\nnext\n```\n", "  indented\n\nnext\n"},
		{"    keep leading indent\n", "    keep leading indent\n"},
		{" \n\t\n", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fileContents(tt.reply), "%q", tt.reply)
	}
}
