package metadata

import (
	"regexp"
	"strconv"
	"strings"
)

// WordsPerPage is the fixed estimate used to convert page counts into word
// counts when no direct figure is available.
const WordsPerPage = 275

// Accepted word-count bounds. Anything outside is treated as a parsing
// artifact, not a real book length.
const (
	wordCountMin = 1000
	wordCountMax = 15000000
)

var wordCountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)word\s*count[:\s]+([\d,.]+)\s*(million|k)?`),
	regexp.MustCompile(`(?i)(?:about|approximately|around|roughly|over|nearly)\s+([\d,.]+)\s*(million|k)?\s+words`),
	regexp.MustCompile(`(?i)contains\s+([\d,.]+)\s*(million|k)?\s+words`),
	regexp.MustCompile(`(?i)([\d,.]+)\s*(million|k)?\s+words?\b`),
}

var pagePattern = regexp.MustCompile(`(?i)([\d,]+)\s+pages`)

// ParseWordCount scans free text for word-count phrases and returns the
// first value within accepted bounds, or 0 when none is found.
func ParseWordCount(text string) int {
	for _, pattern := range wordCountPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			value := parseNumber(match[1], match[2])
			if value >= wordCountMin && value <= wordCountMax {
				return value
			}
		}
	}
	return 0
}

// ParsePageCount extracts a page count from free text, returning 0 when
// absent.
func ParsePageCount(text string) int {
	match := pagePattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	raw := strings.ReplaceAll(match[1], ",", "")
	pages, err := strconv.Atoi(raw)
	if err != nil || pages <= 0 {
		return 0
	}
	return pages
}

// WordCountFromPages converts a page count at the fixed words-per-page
// estimate.
func WordCountFromPages(pages int) int {
	if pages <= 0 {
		return 0
	}
	return pages * WordsPerPage
}

func parseNumber(raw, unit string) int {
	raw = strings.ReplaceAll(raw, ",", "")

	multiplier := 1.0
	switch strings.ToLower(unit) {
	case "million":
		multiplier = 1_000_000
	case "k":
		multiplier = 1_000
	}

	// "1.5 million" style values carry a decimal point; plain counts with a
	// trailing period are stripped instead.
	if multiplier == 1 {
		raw = strings.TrimSuffix(raw, ".")
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0
		}
		return n
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int(f * multiplier)
}
