package text

import "regexp"

// Markdown patterns, applied in declaration order by StripMarkdown.
var markdownRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile("```[\\s\\S]*?```"), ""},
	{regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`), "$1"},
	{regexp.MustCompile(`\*\*([^\n*]+)\*\*`), "$1"},
	{regexp.MustCompile(`__([^\n_]+)__`), "$1"},
	{regexp.MustCompile(`~~([^\n~]+)~~`), "$1"},
	{regexp.MustCompile(`\*([^\n*]+)\*`), "$1"},
	{regexp.MustCompile("`([^`\n]+)`"), "$1"},
	{regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`), "$1"},
	{regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`), "$1"},
	{regexp.MustCompile(`<[^>]+>`), ""},
	{regexp.MustCompile(`(?m)^\s*>\s*`), ""},
	{regexp.MustCompile(`(?m)^\s*([-*_]{3,})\s*$`), ""},
	{regexp.MustCompile(`(?m)^\s*([*\-+]|\d+\.)\s+`), ""},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// StripMarkdown reduces LLM-style Markdown to plain speakable text. Links
// keep their label, images their alt text, code blocks are dropped.
//
// It works on whole documents; a token stream should be stripped per
// segmented unit, not per token, or emphasis markers split across tokens
// survive.
func StripMarkdown(s string) string {
	for _, rule := range markdownRules {
		s = rule.re.ReplaceAllString(s, rule.repl)
	}
	return s
}
