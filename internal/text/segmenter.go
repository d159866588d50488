package text

import (
	"strings"
	"unicode"
)

// Mode selects how TryExtract decides a unit boundary.
type Mode int

const (
	// ModeNatural extracts only up to a true sentence terminator, or early
	// when the pending text grows beyond the latency threshold.
	ModeNatural Mode = iota
	// ModeFlush extracts everything pending, even nothing.
	ModeFlush
)

func (m Mode) String() string {
	switch m {
	case ModeNatural:
		return "natural"
	case ModeFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// Trigger records why a unit was cut.
type Trigger int

const (
	TriggerBoundary Trigger = iota
	TriggerLength
	TriggerFlush
)

func (t Trigger) String() string {
	switch t {
	case TriggerBoundary:
		return "boundary"
	case TriggerLength:
		return "length"
	case TriggerFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// Unit is a piece of text ready for synthesis.
type Unit struct {
	Text    string
	Trigger Trigger
}

// Empty reports whether the unit carries no speakable text.
func (u Unit) Empty() bool {
	return strings.TrimSpace(u.Text) == ""
}

const (
	DefaultMaxRunes = 100
	DefaultMinRunes = 20
)

// DefaultAbbreviations are tokens whose trailing '.' never ends a sentence.
// Matching is case-insensitive.
var DefaultAbbreviations = []string{
	"mr.", "mrs.", "ms.", "dr.", "prof.", "rev.", "st.", "mt.",
	"jr.", "sr.", "ii.", "iii.",
	"phd.", "md.", "lld.", "ba.", "bs.", "ma.",
	"etc.", "vs.", "e.g.", "i.e.", "inc.", "corp.", "ltd.", "co.", "llc.",
	"u.s.", "u.k.", "n.y.", "l.a.", "d.c.",
	"a.m.", "p.m.",
	"ft.", "lb.", "oz.", "gal.", "min.", "sec.", "max.",
}

type SegmenterConfig struct {
	// MaxRunes bounds how much unterminated text may pend before an early
	// cut. Zero or negative disables early cuts.
	MaxRunes int
	// MinRunes is the shortest early cut; the cut lands on the last word
	// boundary at or past this length.
	MinRunes      int
	Abbreviations []string
}

func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		MaxRunes:      DefaultMaxRunes,
		MinRunes:      DefaultMinRunes,
		Abbreviations: DefaultAbbreviations,
	}
}

// Segmenter buffers incoming text and cuts it into synthesis units.
// It is not safe for concurrent use; the owning session serialises access.
type Segmenter struct {
	maxRunes int
	minRunes int
	abbrevs  map[string]struct{}
	buffer   []rune
}

func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	abbrevs := make(map[string]struct{}, len(cfg.Abbreviations))
	for _, a := range cfg.Abbreviations {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if !strings.HasSuffix(a, ".") {
			a += "."
		}
		abbrevs[a] = struct{}{}
	}
	minRunes := cfg.MinRunes
	if minRunes < 0 {
		minRunes = 0
	}
	return &Segmenter{
		maxRunes: cfg.MaxRunes,
		minRunes: minRunes,
		abbrevs:  abbrevs,
	}
}

func (s *Segmenter) Feed(text string) {
	if text == "" {
		return
	}
	s.buffer = append(s.buffer, []rune(text)...)
}

// Pending returns the buffered text that has not been extracted yet.
func (s *Segmenter) Pending() string {
	return string(s.buffer)
}

func (s *Segmenter) Reset() {
	s.buffer = s.buffer[:0]
}

// TryExtract cuts the next unit. In ModeFlush it always succeeds and drains
// the buffer. In ModeNatural it never returns an empty unit.
func (s *Segmenter) TryExtract(mode Mode) (Unit, bool) {
	if mode == ModeFlush {
		unit := Unit{Text: strings.TrimSpace(string(s.buffer)), Trigger: TriggerFlush}
		s.buffer = s.buffer[:0]
		return unit, true
	}

	if end := s.findTerminator(); end >= 0 {
		return s.cut(end+1, TriggerBoundary)
	}

	if s.maxRunes <= 0 {
		return Unit{}, false
	}
	start := leadingSpace(s.buffer)
	trimmed := len(s.buffer) - start - trailingSpace(s.buffer[start:])
	if trimmed <= s.maxRunes {
		return Unit{}, false
	}
	for i := len(s.buffer) - 1; i >= start+s.minRunes; i-- {
		if unicode.IsSpace(s.buffer[i]) && i > start {
			if unit, ok := s.cut(i, TriggerLength); ok {
				return unit, true
			}
		}
	}
	return s.cut(len(s.buffer), TriggerLength)
}

// cut removes buffer[:n] and returns it as a unit. An all-space prefix is
// consumed but reported as no unit.
func (s *Segmenter) cut(n int, trigger Trigger) (Unit, bool) {
	head := strings.TrimSpace(string(s.buffer[:n]))
	rest := s.buffer[n:]
	s.buffer = append(s.buffer[:0], rest...)
	if head == "" {
		return Unit{}, false
	}
	return Unit{Text: head, Trigger: trigger}, true
}

// findTerminator returns the index of the last rune of the first complete
// sentence in the buffer, or -1.
func (s *Segmenter) findTerminator() int {
	buf := s.buffer
	for i := 0; i < len(buf); i++ {
		r := buf[i]
		if !isTerminator(r) {
			continue
		}
		if r == '.' && i > 0 && i+1 < len(buf) && unicode.IsDigit(buf[i-1]) && unicode.IsDigit(buf[i+1]) {
			continue
		}

		end := i
		for end+1 < len(buf) && isTerminator(buf[end+1]) {
			end++
		}
		for end+1 < len(buf) && isClosing(buf[end+1]) {
			end++
		}

		if !isWideTerminator(buf[end]) && !isClosing(buf[end]) {
			if end+1 < len(buf) && !unicode.IsSpace(buf[end+1]) {
				i = end
				continue
			}
		}
		if r == '.' && end == i && s.isAbbreviation(i) {
			continue
		}
		return end
	}
	return -1
}

// isAbbreviation checks the whitespace-delimited token ending at the '.'
// at index dot.
func (s *Segmenter) isAbbreviation(dot int) bool {
	if len(s.abbrevs) == 0 {
		return false
	}
	start := dot
	for start > 0 && !unicode.IsSpace(s.buffer[start-1]) {
		start--
	}
	token := strings.TrimLeftFunc(string(s.buffer[start:dot+1]), func(r rune) bool {
		return isClosing(r) || r == '(' || r == '[' || r == '“' || r == '‘'
	})
	_, ok := s.abbrevs[strings.ToLower(token)]
	return ok
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return isWideTerminator(r)
}

func isWideTerminator(r rune) bool {
	switch r {
	case '。', '！', '？':
		return true
	default:
		return false
	}
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '」', '』':
		return true
	default:
		return false
	}
}

func leadingSpace(rs []rune) int {
	n := 0
	for n < len(rs) && unicode.IsSpace(rs[n]) {
		n++
	}
	return n
}

func trailingSpace(rs []rune) int {
	n := 0
	for n < len(rs) && unicode.IsSpace(rs[len(rs)-1-n]) {
		n++
	}
	return n
}
