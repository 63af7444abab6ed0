package judge

import (
	"bytes"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, src string, data any) string {
	t.Helper()
	tmpl, err := template.New("test").Funcs(TemplateFuncs()).Parse(src)
	require.NoError(t, err, "template should parse")
	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, data), "template should execute")
	return buf.String()
}

func TestTemplateFuncs(t *testing.T) {
	tests := []struct {
		name string
		src  string
		data any
		want string
	}{
		{name: "add", src: `{{add 2 1}}`, want: "3"},
		{name: "score", src: `{{score .}}`, data: 7.04, want: "7.0"},
		{name: "deref nil", src: `{{score (deref .)}}`, data: (*float64)(nil), want: "0.0"},
		{name: "deref value", src: `{{score (deref .)}}`, data: func() *float64 { v := 8.5; return &v }(), want: "8.5"},
		{name: "join", src: `{{join . ", "}}`, data: []string{"depth", "tone"}, want: "depth, tone"},
		{name: "lower", src: `{{lower "HiRe"}}`, want: "hire"},
		{name: "upper", src: `{{upper "evo"}}`, want: "EVO"},
		{name: "trim", src: `[{{trim "  x  "}}]`, want: "[x]"},
		{name: "truncate", src: `{{truncate . 8}}`, data: "transcript text", want: "trans..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.src, tt.data))
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		length int
		want   string
	}{
		{name: "zero length", input: "abc", length: 0, want: ""},
		{name: "negative length", input: "abc", length: -1, want: ""},
		{name: "fits", input: "abc", length: 3, want: "abc"},
		{name: "short limit without ellipsis", input: "abcdef", length: 3, want: "abc"},
		{name: "ellipsis", input: "abcdef", length: 5, want: "ab..."},
		{name: "multibyte runes", input: "héllo wörld", length: 6, want: "hél..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.input, tt.length))
		})
	}
}
