package text

import (
	"regexp"
	"strings"
)

// Normalizer rewrites text into a speakable form before synthesis.
// Implementations are pure and total.
type Normalizer interface {
	Normalize(text string) string
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func(string) string

func (f NormalizerFunc) Normalize(text string) string { return f(text) }

// Passthrough only collapses whitespace.
var Passthrough Normalizer = NormalizerFunc(CollapseSpace)

var spaceRun = regexp.MustCompile(`\s+`)

func CollapseSpace(text string) string {
	return spaceRun.ReplaceAllString(strings.TrimSpace(text), " ")
}

var latexExpr = struct {
	frac, sqrt, nthRoot, supGroup, subGroup, sum, integral, limit, command *regexp.Regexp
}{
	frac:     regexp.MustCompile(`\\frac\{([^}]+)\}\{([^}]+)\}`),
	sqrt:     regexp.MustCompile(`\\sqrt\{([^}]+)\}`),
	nthRoot:  regexp.MustCompile(`\\sqrt\[([^\]]+)\]\{([^}]+)\}`),
	supGroup: regexp.MustCompile(`([a-zA-Z0-9]+)\^\{([^}]+)\}`),
	subGroup: regexp.MustCompile(`([a-zA-Z0-9]+)_\{([^}]+)\}`),
	sum:      regexp.MustCompile(`\\sum_\{([^}]+)\}\^\{([^}]+)\}`),
	integral: regexp.MustCompile(`\\int_\{([^}]+)\}\^\{([^}]+)\}`),
	limit:    regexp.MustCompile(`\\lim_\{([^}]+?)\s*\\to\s*([^}]+)\}`),
	command:  regexp.MustCompile(`\\[a-zA-Z]+`),
}

var mathExpr = struct {
	fraction, power, subscript, scientific, numMinus, varMinus, spacedMinus *regexp.Regexp
}{
	fraction:    regexp.MustCompile(`(\d+)/(\d+)`),
	power:       regexp.MustCompile(`([a-zA-Z0-9]+)\^([a-zA-Z0-9]+)`),
	subscript:   regexp.MustCompile(`([a-zA-Z0-9]+)_([a-zA-Z0-9]+)`),
	scientific:  regexp.MustCompile(`(\d+(?:\.\d+)?)[eE]([+-]?\d+)\b`),
	numMinus:    regexp.MustCompile(`\b(\d+)\s*-\s*(\d+)\b`),
	varMinus:    regexp.MustCompile(`\b([a-zA-Z])\s*-\s*([a-zA-Z0-9])\b`),
	spacedMinus: regexp.MustCompile(`\s-\s`),
}

var groupingReplacer = strings.NewReplacer(
	"(", " open parenthesis ",
	")", " close parenthesis ",
	"[", " open bracket ",
	"]", " close bracket ",
	"{", " open brace ",
	"}", " close brace ",
)

// Multi-rune keys come first so they win over their single-rune prefixes.
var symbolReplacer = strings.NewReplacer(
	"<<", " much less than ",
	">>", " much greater than ",

	"+", " plus ",
	"×", " times ",
	"∗", " times ",
	"*", " times ",
	"÷", " divided by ",
	"/", " divided by ",
	"=", " equals ",
	"≠", " not equal to ",
	"≈", " approximately equals ",
	"≡", " identical to ",
	"<", " less than ",
	">", " greater than ",
	"≤", " less than or equal to ",
	"≥", " greater than or equal to ",

	"²", " squared",
	"³", " cubed",
	"⁴", " to the fourth power",
	"⁵", " to the fifth power",
	"⁶", " to the sixth power",
	"⁷", " to the seventh power",
	"⁸", " to the eighth power",
	"⁹", " to the ninth power",
	"√", " square root of ",
	"∛", " cube root of ",
	"∜", " fourth root of ",

	"α", " alpha ", "β", " beta ", "γ", " gamma ", "δ", " delta ",
	"ε", " epsilon ", "ζ", " zeta ", "η", " eta ", "θ", " theta ",
	"ι", " iota ", "κ", " kappa ", "λ", " lambda ", "μ", " mu ",
	"ν", " nu ", "ξ", " xi ", "ο", " omicron ", "π", " pi ",
	"ρ", " rho ", "σ", " sigma ", "τ", " tau ", "υ", " upsilon ",
	"φ", " phi ", "χ", " chi ", "ψ", " psi ", "ω", " omega ",

	"Α", " capital alpha ", "Β", " capital beta ", "Γ", " capital gamma ",
	"Δ", " capital delta ", "Ε", " capital epsilon ", "Ζ", " capital zeta ",
	"Η", " capital eta ", "Θ", " capital theta ", "Ι", " capital iota ",
	"Κ", " capital kappa ", "Λ", " capital lambda ", "Μ", " capital mu ",
	"Ν", " capital nu ", "Ξ", " capital xi ", "Ο", " capital omicron ",
	"Π", " capital pi ", "Ρ", " capital rho ", "Σ", " capital sigma ",
	"Τ", " capital tau ", "Υ", " capital upsilon ", "Φ", " capital phi ",
	"Χ", " capital chi ", "Ψ", " capital psi ", "Ω", " capital omega ",

	"∞", " infinity ",
	"ℯ", " e ",
	"ℎ", " h ",
	"ℏ", " h bar ",
	"ℵ", " aleph ",

	"∈", " is in ",
	"∉", " is not in ",
	"⊂", " is a subset of ",
	"⊃", " is a superset of ",
	"⊆", " is a subset of or equal to ",
	"⊇", " is a superset of or equal to ",
	"∪", " union ",
	"∩", " intersection ",
	"∅", " empty set ",
	"∀", " for all ",
	"∃", " there exists ",
	"∄", " there does not exist ",
	"¬", " not ",
	"∧", " and ",
	"∨", " or ",
	"⊕", " exclusive or ",

	"∫", " integral ",
	"∬", " double integral ",
	"∭", " triple integral ",
	"∮", " contour integral ",
	"∂", " partial derivative ",
	"∇", " nabla ",
	"∆", " delta ",
	"∑", " sum ",
	"∏", " product ",
	"∐", " coproduct ",

	"←", " left arrow ",
	"→", " right arrow ",
	"↑", " up arrow ",
	"↓", " down arrow ",
	"↔", " left right arrow ",
	"↕", " up down arrow ",
	"⇐", " left double arrow ",
	"⇒", " right double arrow ",
	"⇑", " up double arrow ",
	"⇓", " down double arrow ",
	"⇔", " left right double arrow ",

	"°", " degrees ",
	"′", " prime ",
	"″", " double prime ",
	"‴", " triple prime ",
	"∝", " proportional to ",
	"∟", " right angle ",
	"∠", " angle ",
	"∥", " parallel to ",
	"⊥", " perpendicular to ",
	"±", " plus or minus ",
	"∓", " minus or plus ",
	"∴", " therefore ",
	"∵", " because ",
	"∷", " as ",
	"∶", " ratio ",
	"%", " percent ",
	"‰", " permille ",
)

// MathNormalizer spells out LaTeX and math notation. LaTeX constructs are
// expanded before bare symbols so their braces are still intact.
type MathNormalizer struct{}

func (MathNormalizer) Normalize(text string) string {
	return CollapseSpace(expandMath(expandLatex(text)))
}

func expandLatex(s string) string {
	s = latexExpr.frac.ReplaceAllString(s, "$1 over $2")
	s = latexExpr.nthRoot.ReplaceAllString(s, "${1}th root of $2")
	s = latexExpr.sqrt.ReplaceAllString(s, "square root of $1")
	s = latexExpr.sum.ReplaceAllString(s, "sum from $1 to $2")
	s = latexExpr.integral.ReplaceAllString(s, "integral from $1 to $2")
	s = latexExpr.limit.ReplaceAllString(s, "limit as $1 approaches $2")
	s = latexExpr.supGroup.ReplaceAllString(s, "$1 to the power of $2")
	s = latexExpr.subGroup.ReplaceAllString(s, "$1 subscript $2")
	return latexExpr.command.ReplaceAllString(s, "")
}

func expandMath(s string) string {
	s = mathExpr.fraction.ReplaceAllString(s, "$1 over $2")
	s = mathExpr.power.ReplaceAllString(s, "$1 to the power of $2")
	s = mathExpr.subscript.ReplaceAllString(s, "$1 subscript $2")
	s = groupingReplacer.Replace(s)
	s = mathExpr.scientific.ReplaceAllString(s, "$1 times 10 to the power of $2")
	s = mathExpr.numMinus.ReplaceAllString(s, "$1 minus $2")
	s = mathExpr.varMinus.ReplaceAllString(s, "$1 minus $2")
	s = mathExpr.spacedMinus.ReplaceAllString(s, " minus ")
	return symbolReplacer.Replace(s)
}
