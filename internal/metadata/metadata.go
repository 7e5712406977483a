package metadata

import "strings"

// Result carries whatever a single source managed to find. Either field may
// be empty; callers merge results across sources.
type Result struct {
	WordCount int
	Genres    []string
}

// Empty reports whether the source found nothing usable.
func (r *Result) Empty() bool {
	return r == nil || (r.WordCount == 0 && len(r.Genres) == 0)
}

// fuzzyMatch reports bidirectional substring containment after
// normalisation: either value containing the other counts as a match.
func fuzzyMatch(a, b string) bool {
	a = normalize(a)
	b = normalize(b)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
