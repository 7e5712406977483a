package service

import "time"

// CurrentTermAndYear maps a timestamp to the school's three-part calendar.
// The academic year runs September through August and is labeled with the
// calendar year it ends in, so September-December of 2024 belongs to term 1
// of academic year 2025. That labeling follows the established school
// convention and must not be "corrected".
func CurrentTermAndYear(now time.Time) (term, academicYear int) {
	month := int(now.Month())
	year := now.Year()

	switch {
	case month >= 9:
		return 1, year + 1
	case month >= 5:
		return 3, year
	default:
		return 2, year
	}
}
