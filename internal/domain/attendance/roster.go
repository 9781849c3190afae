package attendance

import (
	"time"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// StudentRosterEntry joins a student with the months fetched so far and the
// summary derived from them.
type StudentRosterEntry struct {
	Student student.Student            `json:"student"`
	Records map[Month]AttendanceRecord `json:"records"`
	Summary AnnualAttendanceSummary    `json:"summary"`
}

// NewRosterEntry creates an entry with no months loaded.
func NewRosterEntry(s student.Student) StudentRosterEntry {
	return StudentRosterEntry{
		Student: s,
		Records: make(map[Month]AttendanceRecord, len(Months)),
	}
}

// Record returns the month's record, or a zero record if it was not loaded.
func (e StudentRosterEntry) Record(m Month) AttendanceRecord {
	if r, ok := e.Records[m]; ok {
		return r
	}
	return ZeroRecord(m)
}

// HasMonth reports whether a result (fetched or substituted) exists for m.
func (e StudentRosterEntry) HasMonth(m Month) bool {
	_, ok := e.Records[m]
	return ok
}

// Put stores a month and recomputes the summary from scratch.
func (e *StudentRosterEntry) Put(r AttendanceRecord) {
	if e.Records == nil {
		e.Records = make(map[Month]AttendanceRecord, len(Months))
	}
	e.Records[r.Month] = r
	e.Summary = ComputeAnnualSummary(e.Records)
}

// Clone returns a deep copy.
func (e StudentRosterEntry) Clone() StudentRosterEntry {
	records := make(map[Month]AttendanceRecord, len(e.Records))
	for m, r := range e.Records {
		records[m] = r
	}
	e.Records = records
	return e
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// LoadState is the lifecycle of a roster aggregate.
type LoadState string

const (
	StateEmpty           LoadState = "empty"
	StatePartiallyLoaded LoadState = "partially_loaded"
	StateFullyLoaded     LoadState = "fully_loaded"
)

// RosterSnapshot is an immutable view of a roster load at one publication.
type RosterSnapshot struct {
	Generation   uint64               `json:"generation"`
	State        LoadState            `json:"state"`
	AcademicYear AcademicYear         `json:"academic_year"`
	Entries      []StudentRosterEntry `json:"entries"`
	LoadedMonths int                  `json:"loaded_months"`
	Failures     int                  `json:"failures"`
	PublishedAt  time.Time            `json:"published_at"`
}

// EmptySnapshot is the state before any load has published.
func EmptySnapshot() RosterSnapshot {
	return RosterSnapshot{State: StateEmpty, Entries: []StudentRosterEntry{}}
}

// IsComplete reports whether every month of every student has been fetched.
func (s RosterSnapshot) IsComplete() bool {
	return s.State == StateFullyLoaded
}

// Progress returns the fraction of (student, month) fetches finished.
func (s RosterSnapshot) Progress() float64 {
	total := len(s.Entries) * len(Months)
	if total == 0 {
		if s.State == StateFullyLoaded {
			return 1
		}
		return 0
	}
	return float64(s.LoadedMonths) / float64(total)
}

// Entry finds a student's entry by ID.
func (s RosterSnapshot) Entry(studentID string) (StudentRosterEntry, bool) {
	for _, e := range s.Entries {
		if e.Student.ID == studentID {
			return e, true
		}
	}
	return StudentRosterEntry{}, false
}

// LowAnnualAttendance returns the entries whose overall percentage is below
// threshold, in snapshot order. Students with nothing recorded count as 0%.
func LowAnnualAttendance(entries []StudentRosterEntry, threshold float64) []StudentRosterEntry {
	out := make([]StudentRosterEntry, 0)
	for _, e := range entries {
		if e.Summary.OverallPercentage < threshold {
			out = append(out, e)
		}
	}
	return out
}
