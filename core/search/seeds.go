package search

import (
	"regexp"
	"strings"
)

// DefaultSeedLimit caps the number of seeds taken from one query
const DefaultSeedLimit = 10

var (
	quotedPhrase = regexp.MustCompile(`"([^"]+)"`)
	// Go's \b is ASCII only, so the left boundary is matched explicitly
	capitalizedToken = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(\p{Lu}[\p{L}\p{N}-]+)`)
)

// ExtractSeeds returns the seed entity names of a query: quoted phrases
// first, then capitalized tokens of two or more characters. Duplicates are
// dropped case-insensitively and at most limit seeds are returned.
func ExtractSeeds(query string, limit int) []string {
	if limit <= 0 {
		limit = DefaultSeedLimit
	}

	seeds := []string{}
	seen := map[string]bool{}
	add := func(s string) bool {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			return len(seeds) < limit
		}
		seen[key] = true
		seeds = append(seeds, s)
		return len(seeds) < limit
	}

	for _, m := range quotedPhrase.FindAllStringSubmatch(query, -1) {
		if !add(m[1]) {
			return seeds
		}
	}

	rest := quotedPhrase.ReplaceAllString(query, " ")
	for _, m := range capitalizedToken.FindAllStringSubmatch(rest, -1) {
		if !add(m[1]) {
			return seeds
		}
	}
	return seeds
}
