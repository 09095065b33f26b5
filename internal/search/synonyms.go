package search

import "strings"

// synonymLexicon is the fixed query-expansion map of spec §4.7 step 2.
var synonymLexicon = map[string][]string{
	"bug":     {"defect", "issue"},
	"error":   {"failure", "exception"},
	"fast":    {"quick", "rapid"},
	"slow":    {"sluggish", "delayed"},
	"happy":   {"glad", "pleased"},
	"sad":     {"unhappy", "down"},
	"meeting": {"call", "sync"},
	"deploy":  {"release", "ship"},
	"config":  {"settings", "configuration"},
	"user":    {"customer", "client"},
}

// expandQuery appends synonyms for each whitespace token present in
// the lexicon, deduplicated, preserving the original query first.
func expandQuery(query string) string {
	tokens := strings.Fields(strings.ToLower(query))
	seen := map[string]struct{}{query: {}}
	expanded := []string{query}

	for _, t := range tokens {
		for _, syn := range synonymLexicon[t] {
			if _, ok := seen[syn]; !ok {
				seen[syn] = struct{}{}
				expanded = append(expanded, syn)
			}
		}
	}
	return strings.Join(expanded, " ")
}
