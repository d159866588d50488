package text

import "testing"

func TestMathNormalizer(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello world.", "Hello world."},
		{"1/2 of it", "1 over 2 of it"},
		{"x^2 + y^2", "x to the power of 2 plus y to the power of 2"},
		{"H_2O", "H subscript 2O"},
		{"5 - 3", "5 minus 3"},
		{"well-known fact", "well-known fact"},
		{"a ≤ b", "a less than or equal to b"},
		{"a << b", "a much less than b"},
		{"π r²", "pi r squared"},
		{"50%", "50 percent"},
		{"1.5e10", "1.5 times 10 to the power of 10"},
		{`\frac{a}{b}`, "a over b"},
		{`\sqrt{x}`, "square root of x"},
		{`\sqrt[3]{x}`, "3th root of x"},
		{`x^{n+1}`, "x to the power of n plus 1"},
		{`\sum_{i=1}^{n} i`, "sum from i equals 1 to n i"},
		{`\lim_{x \to 0} f`, "limit as x approaches 0 f"},
		{`\alpha + 1`, "plus 1"},
		{"f(x)", "f open parenthesis x close parenthesis"},
	}
	n := MathNormalizer{}
	for _, tc := range cases {
		if got := n.Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPassthroughCollapsesSpace(t *testing.T) {
	if got := Passthrough.Normalize("  a \n\t b  "); got != "a b" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestStripMarkdownCommonSyntax(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"# Title", "Title"},
		{"some **bold** and *italic*", "some bold and italic"},
		{"see [docs](https://example.com)", "see docs"},
		{"![logo](a.png) here", "logo here"},
		{"use `go test`", "use go test"},
		{"- item one", "item one"},
		{"> quoted", "quoted"},
		{"before\n```\ncode\n```\nafter", "before\n\nafter"},
	}
	for _, tc := range cases {
		if got := StripMarkdown(tc.in); got != tc.want {
			t.Errorf("StripMarkdown(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
