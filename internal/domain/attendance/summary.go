package attendance

// AnnualAttendanceSummary aggregates one student's twelve months.
type AnnualAttendanceSummary struct {
	TotalWorkingDays  int     `json:"total_working_days"`
	TotalDaysPresent  int     `json:"total_days_present"`
	OverallPercentage float64 `json:"overall_percentage"`
	PopulatedMonths   int     `json:"populated_months"`
}

// ComputeAnnualSummary sums the months that have working days and derives the
// overall percentage from those sums. Missing months and months with zero
// working days contribute nothing. The result depends only on the map contents.
func ComputeAnnualSummary(records map[Month]AttendanceRecord) AnnualAttendanceSummary {
	var s AnnualAttendanceSummary
	for _, m := range Months {
		r, ok := records[m]
		if !ok || r.WorkingDays <= 0 {
			continue
		}
		s.TotalWorkingDays += r.WorkingDays
		s.TotalDaysPresent += r.DaysPresent
		s.PopulatedMonths++
	}
	if s.TotalWorkingDays > 0 {
		s.OverallPercentage = float64(s.TotalDaysPresent) / float64(s.TotalWorkingDays) * 100
	}
	return s
}

// RoundedPercentage returns the overall percentage to one decimal.
func (s AnnualAttendanceSummary) RoundedPercentage() float64 {
	return Percent(s.TotalDaysPresent, s.TotalWorkingDays)
}

// Status returns the label for the rounded overall percentage.
func (s AnnualAttendanceSummary) Status() string {
	return StatusLabel(s.RoundedPercentage())
}
