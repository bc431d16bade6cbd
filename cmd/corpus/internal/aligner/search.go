package aligner

import (
	"sort"
)

// Match is an approximate occurrence of a pattern in a text. Start and End
// are rune positions in the searched text, End exclusive.
type Match struct {
	Start int
	End   int
	Dist  int
	Text  string
}

// Levenshtein returns the edit distance between a and b in runes.
func Levenshtein(a, b string) int {
	return levenshtein([]rune(a), []rune(b))
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			tmp := row[j]
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			row[j] = min(row[j]+1, row[j-1]+1, diag+cost)
			diag = tmp
		}
	}
	return row[len(b)]
}

// FindNear returns the substrings of text within Levenshtein distance
// maxDist of pattern. Overlapping candidates are consolidated to the one
// with the smallest distance, then the longest; results are ordered by
// start position.
func FindNear(pattern, text []rune, maxDist int) []Match {
	m := len(pattern)
	if m == 0 || len(text) == 0 || maxDist < 0 {
		return nil
	}
	candidates := scan(pattern, text, maxDist)
	return consolidate(candidates, text)
}

// scan runs the Sellers dynamic program with Ukkonen's cutoff: a match may
// start at any text position, and rows whose cost already exceeds maxDist
// are not evaluated. For every end position with a full match of cost
// <= maxDist it emits the cheapest alignment, preferring the earliest start.
func scan(pattern, text []rune, maxDist int) []Match {
	m := len(pattern)
	prev := make([]int, m+1)
	prevStart := make([]int, m+1)
	cur := make([]int, m+1)
	curStart := make([]int, m+1)

	top := min(maxDist, m)
	for i := 0; i <= top; i++ {
		prev[i] = i
	}

	var out []Match
	for j := 1; j <= len(text); j++ {
		cur[0] = 0
		curStart[0] = j
		limit := min(top+1, m)
		tc := text[j-1]
		for i := 1; i <= limit; i++ {
			cost := 1
			if pattern[i-1] == tc {
				cost = 0
			}
			best, bestStart := prev[i-1]+cost, prevStart[i-1]

			if v := cur[i-1] + 1; v < best || (v == best && curStart[i-1] < bestStart) {
				best, bestStart = v, curStart[i-1]
			}
			if i <= top {
				if v := prev[i] + 1; v < best || (v == best && prevStart[i] < bestStart) {
					best, bestStart = v, prevStart[i]
				}
			}
			cur[i], curStart[i] = best, bestStart
		}

		top = limit
		for top > 0 && cur[top] > maxDist {
			top--
		}
		if top == m && curStart[m] < j {
			out = append(out, Match{Start: curStart[m], End: j, Dist: cur[m]})
		}
		prev, cur = cur, prev
		prevStart, curStart = curStart, prevStart
	}
	return out
}

// consolidate groups overlapping candidates and keeps the best of each group.
func consolidate(candidates []Match, text []rune) []Match {
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Start != candidates[b].Start {
			return candidates[a].Start < candidates[b].Start
		}
		return candidates[a].End < candidates[b].End
	})

	var out []Match
	best := candidates[0]
	groupEnd := best.End
	for _, c := range candidates[1:] {
		if c.Start < groupEnd {
			if better(c, best) {
				best = c
			}
			groupEnd = max(groupEnd, c.End)
			continue
		}
		out = append(out, best)
		best = c
		groupEnd = c.End
	}
	out = append(out, best)

	for i := range out {
		out[i].Text = string(text[out[i].Start:out[i].End])
	}
	return out
}

func better(a, b Match) bool {
	if a.Dist != b.Dist {
		return a.Dist < b.Dist
	}
	return a.End-a.Start > b.End-b.Start
}
