// Package textsim provides the whitespace-tokenized, lowercase Jaccard
// similarity used throughout the engine: relevance scoring (spec
// §4.3), conflict detection (spec §4.4), and fuzzy search (spec §4.7).
package textsim

import "strings"

// Tokenize lowercases and splits on whitespace, matching the
// "whitespace-tokenized lowercase content" contract of spec §4.4.
func Tokenize(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |A∩B| / |A∪B| over the whitespace token sets of a
// and b. Two empty strings are defined as dissimilar (0), since there
// is no content to compare.
func Jaccard(a, b string) float64 {
	setA := Tokenize(a)
	setB := Tokenize(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// MaxJaccard returns the maximum Jaccard similarity of text against
// any of candidates, or 0 if candidates is empty (spec §4.3 relevance
// factor: "max(jaccard(content, q)) over q in recent_queries").
func MaxJaccard(text string, candidates []string) float64 {
	best := 0.0
	for _, c := range candidates {
		if sim := Jaccard(text, c); sim > best {
			best = sim
		}
	}
	return best
}
