// Package fuzzy implements approximate string matching used for typo tolerant
// keyword detection and task title lookup.
package fuzzy

import "strings"

// DefaultThreshold is the similarity a candidate needs to count as a match
// when the caller has no better number.
const DefaultThreshold = 0.7

// Ratio returns the similarity of a and b in [0, 1] computed as 2*M/T, where
// M is the number of runes in the matching blocks found by recursive longest
// common substring search and T is the combined rune length of both inputs.
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingRunes(ra, rb)) / float64(total)
}

// Match compares the lower-cased, trimmed text with every candidate and
// returns the candidate with the highest ratio, provided it reaches the
// threshold. The earliest candidate wins ties.
func Match(text string, candidates []string, threshold float64) (string, bool) {
	clean := strings.ToLower(strings.TrimSpace(text))
	var (
		best      string
		bestRatio float64
		found     bool
	)
	for _, candidate := range candidates {
		ratio := Ratio(clean, strings.ToLower(candidate))
		if ratio < threshold {
			continue
		}
		if !found || ratio > bestRatio {
			best, bestRatio, found = candidate, ratio, true
		}
	}
	return best, found
}

func matchingRunes(a, b []rune) int {
	i, j, size := longestCommon(a, b)
	if size == 0 {
		return 0
	}
	return size + matchingRunes(a[:i], b[:j]) + matchingRunes(a[i+size:], b[j+size:])
}

// longestCommon returns the start offsets in a and b and the length of the
// longest common substring. The first block found wins ties.
func longestCommon(a, b []rune) (int, int, int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	var bestI, bestJ, best int
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] != b[j-1] {
				cur[j] = 0
				continue
			}
			cur[j] = prev[j-1] + 1
			if cur[j] > best {
				best = cur[j]
				bestI = i - best
				bestJ = j - best
			}
		}
		prev, cur = cur, prev
	}
	return bestI, bestJ, best
}
