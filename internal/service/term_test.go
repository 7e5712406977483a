package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCurrentTermAndYear(t *testing.T) {
	cases := []struct {
		name     string
		now      time.Time
		wantTerm int
		wantYear int
	}{
		{"september starts term one of next label", time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), 1, 2025},
		{"december stays in term one", time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC), 1, 2025},
		{"january is term two of the same label", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), 2, 2025},
		{"april closes term two", time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC), 2, 2025},
		{"may opens term three", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), 3, 2025},
		{"august closes the year", time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), 3, 2025},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			term, year := CurrentTermAndYear(tc.now)
			assert.Equal(t, tc.wantTerm, term)
			assert.Equal(t, tc.wantYear, year)
		})
	}
}
