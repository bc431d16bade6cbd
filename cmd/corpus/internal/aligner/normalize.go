package aligner

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Normalized is a lower-cased, digit- and punctuation-free rendering of a
// raw text that remembers where every rune came from.
type Normalized struct {
	Runes []rune
	// Offsets[i] is the rune index in the raw text that produced Runes[i].
	Offsets []int
}

// String returns the normalized text.
func (n Normalized) String() string {
	return string(n.Runes)
}

// RawOffset maps a normalized rune position back to the raw text.
func (n Normalized) RawOffset(pos int) (int, bool) {
	if pos < 0 || pos >= len(n.Offsets) {
		return 0, false
	}
	return n.Offsets[pos], true
}

func isStripped(r rune) bool {
	return unicode.IsDigit(r) || unicode.IsPunct(r) || strings.ContainsRune(asciiPunctuation, r)
}

// Normalize lower-cases raw, drops digits and punctuation, collapses
// whitespace runs to one space and trims the ends.
func Normalize(raw string, tag language.Tag) Normalized {
	caser := cases.Lower(tag)
	var (
		out     []rune
		offsets []int
		space   = -1
	)
	for i, r := range []rune(raw) {
		if unicode.IsSpace(r) {
			if space < 0 {
				space = i
			}
			continue
		}
		if isStripped(r) {
			continue
		}
		if space >= 0 {
			if len(out) > 0 {
				out = append(out, ' ')
				offsets = append(offsets, space)
			}
			space = -1
		}
		for _, lr := range lowerRune(caser, r) {
			if isStripped(lr) {
				continue
			}
			out = append(out, lr)
			offsets = append(offsets, i)
		}
	}
	return Normalized{Runes: out, Offsets: offsets}
}

// Lower lower-cases text with the rules of tag, one rune at a time like
// Normalize, so context-dependent forms such as the Greek final sigma fold
// the same way on both sides of a comparison.
func Lower(text string, tag language.Tag) string {
	caser := cases.Lower(tag)
	var b strings.Builder
	for _, r := range text {
		b.WriteString(lowerRune(caser, r))
	}
	return b.String()
}

func lowerRune(caser cases.Caser, r rune) string {
	return caser.String(string(r))
}
