package student

import (
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Group is the course combination a student is enrolled in.
type Group string

const (
	GroupMPC   Group = "mpc"
	GroupBIPC  Group = "bipc"
	GroupCEC   Group = "cec"
	GroupHEC   Group = "hec"
	GroupTHM   Group = "thm"
	GroupOAS   Group = "oas"
	GroupMPHW  Group = "mphw"
	GroupOther Group = "other"
)

// AllGroups lists every group in the order the college prints them.
var AllGroups = []Group{GroupMPC, GroupBIPC, GroupCEC, GroupHEC, GroupTHM, GroupOAS, GroupMPHW, GroupOther}

// ParseGroup normalizes a group name. The second result is false for unknown groups.
func ParseGroup(s string) (Group, bool) {
	g := Group(strings.ToLower(strings.TrimSpace(s)))
	return g, g.IsValid()
}

// IsValid reports whether the group is known.
func (g Group) IsValid() bool {
	for _, known := range AllGroups {
		if g == known {
			return true
		}
	}
	return false
}

// IsVocational reports whether the group follows the vocational syllabus.
func (g Group) IsVocational() bool {
	return g == GroupTHM || g == GroupOAS || g == GroupMPHW
}

// Label returns the display form, e.g. "Mpc".
func (g Group) Label() string {
	return capitalize(string(g))
}

// Medium is the language of instruction.
type Medium string

const (
	MediumEnglish Medium = "english"
	MediumTelugu  Medium = "telugu"
)

// IsValid reports whether the medium is known.
func (m Medium) IsValid() bool {
	return m == MediumEnglish || m == MediumTelugu
}

// Label returns the display form, e.g. "Telugu".
func (m Medium) Label() string {
	return capitalize(string(m))
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student is a read-only view of a backend student record.
type Student struct {
	ID              string    `json:"id"`
	AdmissionNumber string    `json:"admission_number"`
	Name            string    `json:"name"`
	Year            int       `json:"year"` // 1 or 2
	Group           Group     `json:"group"`
	Medium          Medium    `json:"medium"`
	FatherName      string    `json:"father_name,omitempty"`
	DateOfBirth     time.Time `json:"date_of_birth,omitempty"`
	Caste           string    `json:"caste,omitempty"`
	Gender          string    `json:"gender,omitempty"`
	AadharNumber    string    `json:"aadhar_number,omitempty"`
	StudentPhone    string    `json:"student_phone,omitempty"`
	ParentPhone     string    `json:"parent_phone,omitempty"`
}

// HasIdentity reports whether enough is known to print the student on a report.
func (s *Student) HasIdentity() bool {
	return s != nil && s.ID != "" && (s.Name != "" || s.AdmissionNumber != "")
}

// DisplayName falls back to the admission number when the name is missing.
func (s *Student) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.AdmissionNumber
}

// FormattedDateOfBirth returns the date in dd/mm/yyyy form, or "" if unknown.
func (s *Student) FormattedDateOfBirth() string {
	if s.DateOfBirth.IsZero() {
		return ""
	}
	return s.DateOfBirth.Format("02/01/2006")
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
