// Package aligner locates noisy transcripts inside a reference text with
// an escalating approximate substring search.
package aligner

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/language"
)

// ErrNoMatch is returned when no substring lies within the distance ceiling.
var ErrNoMatch = errors.New("no match within distance ceiling")

// Params controls the escalating search. The first round accepts matches
// up to QFactor edits; every further round widens the limit by QStep while
// it stays below QMax.
type Params struct {
	QFactor int
	QMax    int
	QStep   int
}

// DefaultParams returns the search defaults.
func DefaultParams() Params {
	return Params{QFactor: 5, QMax: 70, QStep: 5}
}

// Validate checks the escalation parameters.
func (p Params) Validate() error {
	if p.QFactor < 0 {
		return fmt.Errorf("q factor must be non-negative, got %d", p.QFactor)
	}
	if p.QMax < p.QFactor {
		return fmt.Errorf("q max %d is below q factor %d", p.QMax, p.QFactor)
	}
	if p.QStep <= 0 {
		return fmt.Errorf("q step must be positive, got %d", p.QStep)
	}
	return nil
}

// Rounds returns the number of search rounds: ceil((QMax-QFactor)/QStep),
// and at least one.
func (p Params) Rounds() int {
	if p.QStep <= 0 {
		return 1
	}
	n := int(math.Ceil(float64(p.QMax-p.QFactor) / float64(p.QStep)))
	return max(n, 1)
}

// Threshold returns the distance limit of round r (zero based).
func (p Params) Threshold(r int) int {
	return p.QFactor + r*p.QStep
}

// Source is a reference text prepared for searching. It is safe for
// concurrent use.
type Source struct {
	raw  []rune
	norm Normalized
	tag  language.Tag
}

// NewSource normalizes raw with the casing rules of tag.
func NewSource(raw string, tag language.Tag) *Source {
	return &Source{raw: []rune(raw), norm: Normalize(raw, tag), tag: tag}
}

// Normalized returns the text the search runs against.
func (s *Source) Normalized() string {
	return s.norm.String()
}

// Result is the best match for one transcript.
type Result struct {
	Found string
	// Diff is the search distance of the accepted match.
	Diff int
	// Shift is the rune offset of Found in the raw source text.
	Shift   int
	ShiftOK bool
	// Rounds is the number of search rounds that ran.
	Rounds    int
	Threshold int
}

// Find searches for transcript in the source, escalating the distance
// limit until a round yields at least one match. Among the matches of that
// round the one with the smallest Levenshtein distance to the transcript
// wins; the first one wins ties.
func (s *Source) Find(transcript string, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	pattern := []rune(Lower(transcript, s.tag))
	if len(pattern) == 0 {
		return Result{}, ErrNoMatch
	}

	rounds := p.Rounds()
	var matches []Match
	r := 0
	for ; r < rounds; r++ {
		matches = FindNear(pattern, s.norm.Runes, p.Threshold(r))
		if len(matches) > 0 {
			break
		}
	}
	if len(matches) == 0 {
		return Result{Rounds: rounds, Threshold: p.Threshold(rounds - 1)}, ErrNoMatch
	}

	best, bestDist := matches[0], levenshtein([]rune(matches[0].Text), pattern)
	for _, m := range matches[1:] {
		if d := levenshtein([]rune(m.Text), pattern); d < bestDist {
			best, bestDist = m, d
		}
	}

	res := Result{
		Found:     best.Text,
		Diff:      best.Dist,
		Rounds:    r + 1,
		Threshold: p.Threshold(r),
	}
	res.Shift, res.ShiftOK = s.norm.RawOffset(best.Start)
	return res, nil
}

// RawSlice returns raw source runes [from, from+n) clamped to the text.
func (s *Source) RawSlice(from, n int) string {
	if from < 0 || from >= len(s.raw) {
		return ""
	}
	to := min(from+n, len(s.raw))
	return string(s.raw[from:to])
}
