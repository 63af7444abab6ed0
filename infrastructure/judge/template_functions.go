// Package judge provides the LLM-backed interview judge and the prompt
// helpers shared by Hydra's staff personas.
//
// The template functions in this package extend Go's standard template
// capabilities with the few operations prompt rendering needs. They are
// stateless and safe for concurrent template execution, and they return safe
// defaults rather than panicking on odd input.
package judge

import (
	"strconv"
	"strings"
	"text/template"
	"unicode/utf8"
)

// TemplateFuncs returns the function map used by every persona prompt.
//
// Usage:
//
//	tmpl, err := template.New("prompt").Funcs(judge.TemplateFuncs()).Parse(src)
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		// add performs integer addition.
		// Common use: converting 0-based to 1-based indexing.
		// Template usage: {{add $index 1}}
		"add": func(a, b int) int {
			return a + b
		},

		// truncate limits s to length runes, adding "..." if truncated.
		// Returns empty string if length <= 0.
		// Template usage: {{truncate .Transcript 4000}}
		"truncate": truncate,

		// score formats a 0-10 score with one decimal.
		// Template usage: {{score .UserScore}}
		"score": func(v float64) string {
			return strconv.FormatFloat(v, 'f', 1, 64)
		},

		// deref reads an optional score, 0 when nil.
		// Template usage: {{score (deref .PreviousAvg)}}
		"deref": func(v *float64) float64 {
			if v == nil {
				return 0
			}
			return *v
		},

		// join concatenates elements with separator between them.
		// Template usage: {{join .Competencies ", "}}
		"join": func(elems []string, sep string) string {
			return strings.Join(elems, sep)
		},

		// lower returns s with all Unicode letters mapped to lowercase.
		"lower": strings.ToLower,

		// upper returns s with all Unicode letters mapped to uppercase.
		"upper": strings.ToUpper,

		// trim removes leading and trailing whitespace.
		"trim": strings.TrimSpace,
	}
}

func truncate(s string, length int) string {
	if length <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= length {
		return s
	}
	runes := []rune(s)
	// Reserve space for ellipsis when length allows.
	if length > 3 {
		return string(runes[:length-3]) + "..."
	}
	return string(runes[:length])
}
