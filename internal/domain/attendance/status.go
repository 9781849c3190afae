package attendance

// Status labels shared by every report.
const (
	StatusGood        = "Good"
	StatusAverage     = "Average"
	StatusPoor        = "Poor"
	StatusNotRecorded = "Not recorded"
)

// Thresholds are inclusive lower bounds.
const (
	GoodThreshold    = 75.0
	AverageThreshold = 50.0
)

// StatusLabel maps a percentage to Good (>=75), Average (>=50) or Poor.
func StatusLabel(percentage float64) string {
	switch {
	case percentage >= GoodThreshold:
		return StatusGood
	case percentage >= AverageThreshold:
		return StatusAverage
	default:
		return StatusPoor
	}
}
