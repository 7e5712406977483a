package metadata

import "strings"

// genreVocabulary maps lowercase keywords found in subject tags or abstract
// text to canonical genre labels.
var genreVocabulary = []struct {
	keyword string
	genre   string
}{
	{"science fiction", "Science Fiction"},
	{"sci-fi", "Science Fiction"},
	{"fantasy", "Fantasy"},
	{"mystery", "Mystery"},
	{"detective", "Mystery"},
	{"thriller", "Thriller"},
	{"adventure", "Adventure"},
	{"romance", "Romance"},
	{"horror", "Horror"},
	{"historical fiction", "Historical Fiction"},
	{"history", "History"},
	{"biography", "Biography"},
	{"autobiography", "Biography"},
	{"memoir", "Biography"},
	{"poetry", "Poetry"},
	{"humor", "Humor"},
	{"humour", "Humor"},
	{"comedy", "Humor"},
	{"graphic novel", "Graphic Novel"},
	{"comic", "Graphic Novel"},
	{"dystopia", "Dystopian"},
	{"fairy tale", "Fairy Tale"},
	{"folklore", "Fairy Tale"},
	{"nonfiction", "Nonfiction"},
	{"non-fiction", "Nonfiction"},
	{"picture book", "Picture Book"},
	{"young adult", "Young Adult"},
	{"juvenile fiction", "Children's Fiction"},
	{"children's stories", "Children's Fiction"},
	{"classic", "Classic"},
	{"animals", "Animals"},
	{"sports", "Sports"},
	{"school", "School Stories"},
}

// GenresFromSubjects keyword-matches catalog subject tags against the fixed
// vocabulary, preserving vocabulary order and deduplicating.
func GenresFromSubjects(subjects []string) []string {
	var joined strings.Builder
	for _, s := range subjects {
		joined.WriteString(strings.ToLower(s))
		joined.WriteString(" | ")
	}
	return GenresFromText(joined.String())
}

// GenresFromText scans free text for genre keywords.
func GenresFromText(text string) []string {
	text = strings.ToLower(text)
	seen := make(map[string]struct{})
	var genres []string
	for _, entry := range genreVocabulary {
		if !strings.Contains(text, entry.keyword) {
			continue
		}
		if _, ok := seen[entry.genre]; ok {
			continue
		}
		seen[entry.genre] = struct{}{}
		genres = append(genres, entry.genre)
	}
	return genres
}

// MergeGenres unions existing and found genres, preserving the existing
// ordering and appending new entries in found order. Comparison is
// case-insensitive.
func MergeGenres(existing, found []string) []string {
	merged := make([]string, 0, len(existing)+len(found))
	seen := make(map[string]struct{}, len(existing)+len(found))
	for _, g := range existing {
		key := normalize(g)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, g)
	}
	for _, g := range found {
		key := normalize(g)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, g)
	}
	return merged
}
