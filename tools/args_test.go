package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a b  c", []string{"a", "b", "c"}},
		{`"a b" c`, []string{"a b", "c"}},
		{`'it"s' x`, []string{`it"s`, "x"}},
		{`"it's"`, []string{"it's"}},
		{`a\ b`, []string{"a b"}},
		{`\"q\"`, []string{`"q"`}},
		{`""`, []string{""}},
		{`-r "hello world" src`, []string{"-r", "hello world", "src"}},
		{`"unterminated arg`, []string{"unterminated arg"}},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, SplitArgs(tt.input), "SplitArgs(%q)", tt.input)
	}
}
