package config

import (
	"fmt"
	"sort"
	"strings"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownTopLevelKeys are the valid top-level table/scalar keys in the config
// file.
var knownTopLevelKeys = map[string]bool{
	"synchronize":                  true,
	"strategy":                     true,
	"rateLimits":                   true,
	"shadowDocumentSizeLimitBytes": true,
	"maxDiskUtilizationMegaBytes":  true,
}

var knownTopLevelKeysList = sortedKeys(knownTopLevelKeys)

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// checkUnknownTopLevelKeys inspects a raw decoded map for top-level keys
// this package does not recognize, returning one error that describes every
// unknown key, with a "did you mean?" suggestion when close enough.
func checkUnknownTopLevelKeys(raw map[string]any) error {
	var msgs []string

	for key := range raw {
		if knownTopLevelKeys[key] {
			continue
		}

		if suggestion := closestMatch(key, knownTopLevelKeysList); suggestion != "" {
			msgs = append(msgs, fmt.Sprintf("unknown config key %q — did you mean %q?", key, suggestion))
		} else {
			msgs = append(msgs, fmt.Sprintf("unknown config key %q", key))
		}
	}

	if len(msgs) == 0 {
		return nil
	}

	sort.Strings(msgs)

	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// closestMatch finds the closest known key by Levenshtein distance, or ""
// if nothing is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
