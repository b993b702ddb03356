// Package levenshtein finds near matches between check messages by edit
// distance.
package levenshtein

import "unicode"

// Matcher computes edit distances reusing one buffer, so it is not safe for
// concurrent use.
type Matcher struct {
	row []int
}

// Distance returns the number of single-rune insertions, deletions and
// substitutions turning a into b. Letters compare case-insensitively.
func (m *Matcher) Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}

	if len(rb) == 0 {
		return len(ra)
	}

	if cap(m.row) < len(rb)+1 {
		m.row = make([]int, len(rb)+1)
	}

	row := m.row[:len(rb)+1]
	for j := range row {
		row[j] = j
	}

	for i, ca := range ra {
		diag := row[0]
		row[0] = i + 1

		for j, cb := range rb {
			cost := 1
			if unicode.ToLower(ca) == unicode.ToLower(cb) {
				cost = 0
			}

			next := min(row[j+1]+1, row[j]+1, diag+cost)
			diag = row[j+1]
			row[j+1] = next
		}
	}

	return row[len(rb)]
}

// Closest returns the candidate nearest to target. A candidate further than a
// third of target's length is not a match.
func Closest(target string, candidates []string) (string, bool) {
	var (
		m    Matcher
		best string
	)

	limit := len([]rune(target)) / 3
	bestDist := limit + 1

	for _, c := range candidates {
		d := m.Distance(target, c)
		if d < bestDist || (d == bestDist && d <= limit && c < best) {
			best, bestDist = c, d
		}
	}

	return best, bestDist <= limit
}
