package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWordCount(t *testing.T) {
	cases := []struct {
		name string
		text string
		want int
	}{
		{"labelled count", "Word count: 46,787", 46787},
		{"approximate phrasing", "The novel runs about 47,000 words in total.", 47000},
		{"contains phrasing", "This edition contains 46787 words.", 46787},
		{"bare count", "46,787 words", 46787},
		{"singular word", "roughly 12,000 words", 12000},
		{"k multiplier", "around 47k words", 47000},
		{"million multiplier", "approximately 1.2 million words", 1200000},
		{"trailing period", "It has 46787. words of prose", 46787},
		{"below minimum ignored", "a 500 words short story", 0},
		{"above maximum ignored", "over 20,000,000 words", 0},
		{"no count present", "A great book about a boy and his dog.", 0},
		{"skips implausible then accepts next", "10 words summary. The full text is about 46,787 words.", 46787},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseWordCount(tc.text))
		})
	}
}

func TestParsePageCount(t *testing.T) {
	assert.Equal(t, 272, ParsePageCount("Paperback, 272 pages"))
	assert.Equal(t, 1178, ParsePageCount("1,178 pages of adventure"))
	assert.Equal(t, 0, ParsePageCount("no length information here"))
}

func TestWordCountFromPages(t *testing.T) {
	assert.Equal(t, 272*WordsPerPage, WordCountFromPages(272))
	assert.Equal(t, 0, WordCountFromPages(0))
	assert.Equal(t, 0, WordCountFromPages(-3))
}
