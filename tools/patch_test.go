package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyUnifiedDiff(t *testing.T) {
	const file = "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n\nfunc helper() {\n\treturn\n}\n"

	tests := []struct {
		name  string
		patch string
		want  string
	}{
		{
			name:  "single hunk",
			patch: "@@ -5,3 +5,3 @@\n func main() {\n-\tfmt.Println(\"hi\")\n+\tfmt.Println(\"hello\")\n }",
			want:  "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hello\")\n}\n\nfunc helper() {\n\treturn\n}\n",
		},
		{
			name:  "two hunks in order",
			patch: "--- a/main.go\n+++ b/main.go\n@@ -1,1 +1,2 @@\n package main\n+// Package main greets.\n@@ -9,3 +10,2 @@\n func helper() {\n-\treturn\n }",
			want:  "package main\n// Package main greets.\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n\nfunc helper() {\n}\n",
		},
		{
			name:  "wrong line numbers still match by context",
			patch: "@@ -40,2 +40,2 @@\n-func helper() {\n+func helper2() {",
			want:  "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n\nfunc helper2() {\n\treturn\n}\n",
		},
		{
			name:  "indentation differences are tolerated",
			patch: "@@ -6,1 +6,1 @@\n-    fmt.Println(\"hi\")\n+\tfmt.Println(\"bye\")",
			want:  "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"bye\")\n}\n\nfunc helper() {\n\treturn\n}\n",
		},
		{
			name:  "blank context line without its space",
			patch: "@@ -3,3 +3,3 @@\n import \"fmt\"\n\n-func main() {\n+func run() {",
			want:  "package main\n\nimport \"fmt\"\n\nfunc run() {\n\tfmt.Println(\"hi\")\n}\n\nfunc helper() {\n\treturn\n}\n",
		},
		{
			name:  "pure addition uses the header line",
			patch: "@@ -1,0 +2,1 @@\n+// generated",
			want:  "package main\n// generated\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n\nfunc helper() {\n\treturn\n}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyUnifiedDiff(file, tt.patch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyUnifiedDiffKeepsMissingTrailingNewline(t *testing.T) {
	got, err := applyUnifiedDiff("a\nb", "@@ -2,1 +2,1 @@\n-b\n+c\n\\ No newline at end of file")
	require.NoError(t, err)
	assert.Equal(t, "a\nc", got)
}

func TestApplyUnifiedDiffErrors(t *testing.T) {
	for name, patch := range map[string]string{
		"no hunks":        "just some prose",
		"unknown context": "@@ -1,1 +1,1 @@\n-package other\n+package main",
		"garbage line":    "@@ -1,1 +1,1 @@\n package main\n? what",
	} {
		_, err := applyUnifiedDiff("package main\n", patch)
		assert.Error(t, err, name)
	}
}
