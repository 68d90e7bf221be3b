package fuzzy

import (
	"strings"
	"unicode"
)

// LevenshteinDistance calculates the edit distance between two strings
// after lowercasing and collapsing whitespace.
func LevenshteinDistance(s1, s2 string) int {
	r1 := []rune(normalizeString(s1))
	r2 := []rune(normalizeString(s2))
	m := len(r1)
	n := len(r2)

	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	d := make([][]int, m+1)
	for i := range d {
		d[i] = make([]int, n+1)
		d[i][0] = i
	}
	for j := 0; j <= n; j++ {
		d[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			d[i][j] = min(
				d[i-1][j]+1,      // deletion
				d[i][j-1]+1,      // insertion
				d[i-1][j-1]+cost, // substitution
			)
		}
	}

	return d[m][n]
}

// FuzzyMatch checks if query fuzzy-matches text within a given threshold.
// threshold is the maximum allowed edit distance for a single word.
func FuzzyMatch(query, text string, threshold int) bool {
	query = normalizeString(query)
	text = normalizeString(text)

	if strings.Contains(text, query) {
		return true
	}

	for _, word := range Tokens(text) {
		if LevenshteinDistance(query, word) <= threshold {
			return true
		}
		if strings.HasPrefix(word, query) {
			return true
		}
	}

	return false
}

// MatchesProduct reports whether a listing title is about the queried
// product: every query token must appear in the title, allowing a small typo
// budget on longer latin tokens.
func MatchesProduct(query, title string) bool {
	queryTokens := Tokens(query)
	if len(queryTokens) == 0 {
		return false
	}

	if strings.Contains(compact(title), compact(query)) {
		return true
	}

	titleNorm := normalizeString(title)
	for _, token := range queryTokens {
		if !FuzzyMatch(token, titleNorm, tokenThreshold(token)) {
			return false
		}
	}
	return true
}

// Closest returns the index of the candidate nearest to query, or -1 when no
// candidate is within the typo budget for the query's length.
func Closest(query string, candidates []string) int {
	best := -1
	bestDist := tokenThreshold(compact(query)) + 1
	for i, c := range candidates {
		if compact(c) == compact(query) {
			return i
		}
		if dist := LevenshteinDistance(compact(query), compact(c)); dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return best
}

// Tokens splits text into lowercase words on whitespace and punctuation.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		if r == '+' {
			return false
		}
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

func tokenThreshold(token string) int {
	n := len([]rune(token))
	switch {
	case n <= 3:
		return 0
	case n < 8:
		return 1
	default:
		return 2
	}
}

// normalizeString converts to lowercase and collapses whitespace.
func normalizeString(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func compact(s string) string {
	return strings.Join(Tokens(s), "")
}
