package attendance

import "github.com/gjc-vemulawada/attendance-hub/internal/domain/student"

// ClassStudentAttendance is one student's month inside a class listing.
type ClassStudentAttendance struct {
	StudentID       string           `json:"student_id"`
	StudentName     string           `json:"student_name"`
	AdmissionNumber string           `json:"admission_number"`
	Record          AttendanceRecord `json:"record"`
}

// ClassAttendance is the backend's month listing for one year/group.
type ClassAttendance struct {
	Year         int                      `json:"year"`
	Group        student.Group            `json:"group"`
	Month        Month                    `json:"month"`
	AcademicYear AcademicYear             `json:"academic_year"`
	WorkingDays  int                      `json:"working_days"`
	Students     []ClassStudentAttendance `json:"students"`
}

// ClassReportRow is a display row of a class report.
type ClassReportRow struct {
	StudentID       string  `json:"student_id"`
	StudentName     string  `json:"student_name"`
	AdmissionNumber string  `json:"admission_number"`
	WorkingDays     int     `json:"working_days"`
	DaysPresent     int     `json:"days_present"`
	Percentage      float64 `json:"percentage"`
	Status          string  `json:"status"`
}

// ClassReport is the roster-level rollup of one class month.
type ClassReport struct {
	Year             int              `json:"year"`
	Group            student.Group    `json:"group"`
	Month            Month            `json:"month"`
	AcademicYear     AcademicYear     `json:"academic_year"`
	WorkingDays      int              `json:"working_days"`
	Rows             []ClassReportRow `json:"rows"`
	TotalWorkingDays int              `json:"total_working_days"`
	TotalDaysPresent int              `json:"total_days_present"`
	Percentage       float64          `json:"percentage"`
	Status           string           `json:"status"`
	StatusCounts     map[string]int   `json:"status_counts"`
}

// BuildClassReport keeps the backend's student order and totals the class with
// the same rule as the annual summary: only students with working days count.
func BuildClassReport(c ClassAttendance) ClassReport {
	report := ClassReport{
		Year:         c.Year,
		Group:        c.Group,
		Month:        c.Month,
		AcademicYear: c.AcademicYear,
		WorkingDays:  c.WorkingDays,
		Rows:         make([]ClassReportRow, 0, len(c.Students)),
		StatusCounts: map[string]int{StatusGood: 0, StatusAverage: 0, StatusPoor: 0},
	}

	for _, s := range c.Students {
		r := s.Record
		row := ClassReportRow{
			StudentID:       s.StudentID,
			StudentName:     s.StudentName,
			AdmissionNumber: s.AdmissionNumber,
			WorkingDays:     r.WorkingDays,
			DaysPresent:     r.DaysPresent,
			Percentage:      r.Percentage(),
			Status:          StatusNotRecorded,
		}
		if r.IsRecorded() {
			row.Status = r.Status()
			report.StatusCounts[row.Status]++
			report.TotalWorkingDays += r.WorkingDays
			report.TotalDaysPresent += r.DaysPresent
		}
		report.Rows = append(report.Rows, row)
	}

	report.Percentage = Percent(report.TotalDaysPresent, report.TotalWorkingDays)
	report.Status = StatusNotRecorded
	if report.TotalWorkingDays > 0 {
		report.Status = StatusLabel(report.Percentage)
	}
	return report
}

// LowAttendanceQuery selects students below a percentage for one month.
// Year and Group are optional and combine with AND; both empty means the
// whole college.
type LowAttendanceQuery struct {
	AcademicYear AcademicYear
	Month        Month
	Threshold    float64
	Year         int
	Group        student.Group
}

// Validate checks the query before it is sent anywhere.
func (q LowAttendanceQuery) Validate() error {
	if _, err := ParseAcademicYear(string(q.AcademicYear)); err != nil {
		return err
	}
	if _, err := ParseMonth(string(q.Month)); err != nil {
		return err
	}
	return ValidateThreshold(q.Threshold)
}

// LowAttendanceStudent is one match of a low-attendance query.
type LowAttendanceStudent struct {
	StudentID       string           `json:"student_id"`
	StudentName     string           `json:"student_name"`
	AdmissionNumber string           `json:"admission_number"`
	Year            int              `json:"year"`
	Group           student.Group    `json:"group"`
	Record          AttendanceRecord `json:"record"`
}
