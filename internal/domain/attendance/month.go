package attendance

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
)

// Month is a lowercase calendar month name as the backend spells it.
type Month string

const (
	January   Month = "january"
	February  Month = "february"
	March     Month = "march"
	April     Month = "april"
	May       Month = "may"
	June      Month = "june"
	July      Month = "july"
	August    Month = "august"
	September Month = "september"
	October   Month = "october"
	November  Month = "november"
	December  Month = "december"
)

// Months is the fixed month order used by every load, summary and export.
var Months = [12]Month{
	January, February, March, April, May, June,
	July, August, September, October, November, December,
}

// FirstMonth is fetched ahead of the others during a roster load.
const FirstMonth = January

// ParseMonth accepts a month name in any case.
func ParseMonth(s string) (Month, error) {
	m := Month(strings.ToLower(strings.TrimSpace(s)))
	if m.Index() < 0 {
		return "", shared.WrapError("attendance", "ParseMonth", shared.ErrValidation,
			fmt.Sprintf("unknown month %q", s), shared.ErrInvalidMonth)
	}
	return m, nil
}

// Index returns the zero-based calendar position, or -1 for unknown names.
func (m Month) Index() int {
	for i, known := range Months {
		if m == known {
			return i
		}
	}
	return -1
}

// IsValid reports whether m is one of the twelve months.
func (m Month) IsValid() bool {
	return m.Index() >= 0
}

// Label returns the capitalized month name, e.g. "March".
func (m Month) Label() string {
	if m == "" {
		return ""
	}
	return strings.ToUpper(string(m[:1])) + string(m[1:])
}

// Short returns the three-letter label, e.g. "Mar".
func (m Month) Short() string {
	l := m.Label()
	if len(l) > 3 {
		return l[:3]
	}
	return l
}

// String implements fmt.Stringer.
func (m Month) String() string {
	return string(m)
}

// AcademicYear labels a school year, e.g. "2024-2025".
type AcademicYear string

// ParseAcademicYear validates the "YYYY-YYYY" form with consecutive years.
func ParseAcademicYear(s string) (AcademicYear, error) {
	s = strings.TrimSpace(s)
	first, second, ok := strings.Cut(s, "-")
	if !ok || len(first) != 4 || len(second) != 4 {
		return "", shared.ErrInvalidAcademicYear
	}
	start, err1 := strconv.Atoi(first)
	end, err2 := strconv.Atoi(second)
	if err1 != nil || err2 != nil || end != start+1 {
		return "", shared.ErrInvalidAcademicYear
	}
	return AcademicYear(s), nil
}

// StartYear returns the first calendar year of the academic year.
func (a AcademicYear) StartYear() int {
	y, _ := strconv.Atoi(string(a)[:min(4, len(a))])
	return y
}

// String implements fmt.Stringer.
func (a AcademicYear) String() string {
	return string(a)
}

