package diff

import (
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// charMatchLimit bounds the cost of character-level re-matching inside a
// replaced region. Beyond it, matching falls back to word tokens with
// character credit for matched tokens.
const charMatchLimit = 1_000_000

// changeRatio computes 1 - 2M/T over the two texts, where M counts matched
// characters (full credit for equal line regions, partial credit from
// re-matching replaced regions) and T is the combined character count.
func changeRatio(oldText, newText string, oldLines, newLines []string, opcodes []difflib.OpCode) float64 {
	total := utf8.RuneCountInString(oldText) + utf8.RuneCountInString(newText)
	if total == 0 {
		return 0
	}

	matched := 0
	for _, op := range opcodes {
		switch op.Tag {
		case 'e':
			matched += utf8.RuneCountInString(strings.Join(oldLines[op.I1:op.I2], "\n"))
		case 'r':
			matched += charMatch(
				strings.Join(oldLines[op.I1:op.I2], "\n"),
				strings.Join(newLines[op.J1:op.J2], "\n"))
		}
	}

	ratio := 1 - float64(2*matched)/float64(total)
	if ratio < 0 {
		return 0
	}
	return ratio
}

// charMatch returns the number of matched characters between two strings.
func charMatch(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	na := utf8.RuneCountInString(a)
	nb := utf8.RuneCountInString(b)
	if na*nb > charMatchLimit {
		return tokenMatch(a, b)
	}

	m := difflib.NewMatcher(explode(a), explode(b))
	matched := 0
	for _, blk := range m.GetMatchingBlocks() {
		matched += blk.Size
	}
	return matched
}

// tokenMatch approximates matched characters by matching whitespace-delimited
// tokens and crediting the character length of each matched token.
func tokenMatch(a, b string) int {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	m := difflib.NewMatcher(ta, tb)
	matched := 0
	for _, blk := range m.GetMatchingBlocks() {
		for _, tok := range ta[blk.A : blk.A+blk.Size] {
			matched += utf8.RuneCountInString(tok)
		}
	}
	return matched
}

// explode splits a string into single-rune elements for character matching.
func explode(s string) []string {
	out := make([]string, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
