package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jung-kurt/gofpdf"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/exam"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
	"github.com/gjc-vemulawada/attendance-hub/pkg/timeutil"
)

// DefaultCollegeName is printed when none is configured.
const DefaultCollegeName = "Government Junior College, Vemulawada"

const notAvailable = "N/A"

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT MODEL
// ══════════════════════════════════════════════════════════════════════════════

// Field is a label/value line of the identity block.
type Field struct {
	Label string
	Value string
}

// AttendanceRow is one line of the attendance table.
type AttendanceRow struct {
	Month       string
	WorkingDays int
	DaysPresent int
	Percentage  float64
	Status      string
}

// ExamRow is one line of the exam table.
type ExamRow struct {
	Type       string
	Subjects   string
	Marks      int
	MaxMarks   int
	Percentage float64
}

// ProgressDocument is everything printed on a progress report, in order.
type ProgressDocument struct {
	College      string
	AcademicYear string
	Identity     []Field
	Attendance   []AttendanceRow
	Overall      AttendanceRow
	Exams        []ExamRow
	Performance  exam.Performance
	GeneratedAt  time.Time
}

// BuildProgressDocument assembles the report model. Missing months render as
// unrecorded rows; the overall row comes from the annual summary.
func BuildProgressDocument(s *student.Student, records map[attendance.Month]attendance.AttendanceRecord, exams []exam.Record, ay attendance.AcademicYear, college string, now time.Time) (ProgressDocument, error) {
	if !s.HasIdentity() {
		return ProgressDocument{}, shared.ErrNoStudentIdentity
	}
	if college == "" {
		college = DefaultCollegeName
	}

	doc := ProgressDocument{
		College:      college,
		AcademicYear: ay.String(),
		GeneratedAt:  now,
		Identity: []Field{
			{"Name", orNA(s.Name)},
			{"Admission Number", orNA(s.AdmissionNumber)},
			{"Year", yearLabel(s.Year)},
			{"Group", orNA(s.Group.Label())},
			{"Medium", orNA(s.Medium.Label())},
			{"Father's Name", orNA(s.FatherName)},
			{"Date of Birth", orNA(s.FormattedDateOfBirth())},
			{"Gender", orNA(s.Gender)},
		},
		Attendance: make([]AttendanceRow, 0, len(attendance.Months)),
	}

	for _, m := range attendance.Months {
		r, ok := records[m]
		if !ok {
			r = attendance.ZeroRecord(m)
		}
		row := AttendanceRow{
			Month:       m.Label(),
			WorkingDays: r.WorkingDays,
			DaysPresent: r.DaysPresent,
			Percentage:  r.Percentage(),
			Status:      attendance.StatusNotRecorded,
		}
		if r.IsRecorded() {
			row.Status = r.Status()
		}
		doc.Attendance = append(doc.Attendance, row)
	}

	summary := attendance.ComputeAnnualSummary(records)
	doc.Overall = AttendanceRow{
		Month:       "Overall",
		WorkingDays: summary.TotalWorkingDays,
		DaysPresent: summary.TotalDaysPresent,
		Percentage:  summary.RoundedPercentage(),
		Status:      attendance.StatusNotRecorded,
	}
	if summary.TotalWorkingDays > 0 {
		doc.Overall.Status = summary.Status()
	}

	for _, r := range exams {
		doc.Exams = append(doc.Exams, ExamRow{
			Type:       r.Type.Label(),
			Subjects:   strings.Join(r.SubjectNames(), ", "),
			Marks:      r.TotalMarks,
			MaxMarks:   r.MaxMarks(),
			Percentage: attendance.Round1(r.Percentage),
		})
	}
	doc.Performance = exam.ComputePerformance(exams)
	return doc, nil
}

func orNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return notAvailable
	}
	return v
}

func yearLabel(y int) string {
	switch y {
	case 1:
		return "1st Year"
	case 2:
		return "2nd Year"
	default:
		return notAvailable
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RENDERER
// ══════════════════════════════════════════════════════════════════════════════

// Renderer produces both export kinds with a fixed college name and clock.
type Renderer struct {
	College string
	Now     func() time.Time
}

// NewRenderer creates a renderer for college.
func NewRenderer(college string) *Renderer {
	if college == "" {
		college = DefaultCollegeName
	}
	return &Renderer{College: college, Now: timeutil.Now}
}

// Spreadsheet renders a roster spreadsheet.
func (r *Renderer) Spreadsheet(entries []attendance.StudentRosterEntry) ([]byte, error) {
	return ExportSpreadsheet(entries)
}

// ProgressDocument renders a student's progress report as PDF.
func (r *Renderer) ProgressDocument(s *student.Student, records map[attendance.Month]attendance.AttendanceRecord, exams []exam.Record, ay attendance.AcademicYear) ([]byte, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	doc, err := BuildProgressDocument(s, records, exams, ay, r.College, now())
	if err != nil {
		return nil, err
	}
	return RenderProgressDocument(doc)
}

// ExportProgressDocument renders a progress report with the default college name.
func ExportProgressDocument(s *student.Student, records map[attendance.Month]attendance.AttendanceRecord, exams []exam.Record, ay attendance.AcademicYear) ([]byte, error) {
	return NewRenderer("").ProgressDocument(s, records, exams, ay)
}

// Page geometry in millimetres (A4 portrait, 15mm margins).
const (
	pageMargin   = 15.0
	contentWidth = 180.0
	rowHeight    = 7.0
)

// RenderProgressDocument draws doc. Either the whole document is returned or
// an export error; never a partial file.
func RenderProgressDocument(doc ProgressDocument) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	// Header
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, "Student Progress Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, tr(doc.College), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, "Academic Year: "+doc.AcademicYear, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	// Student identity
	sectionTitle(pdf, "Student Information")
	pdf.SetFont("Helvetica", "", 10)
	for _, f := range doc.Identity {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(50, 6, f.Label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, tr(f.Value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// Attendance
	sectionTitle(pdf, "Attendance Record")
	attendanceWidths := []float64{36, 32, 32, 36, 44}
	tableHeader(pdf, attendanceWidths, []string{"Month", "Working Days", "Days Present", "Attendance %", "Status"})
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range doc.Attendance {
		attendanceRow(pdf, attendanceWidths, row, false)
	}
	pdf.SetFont("Helvetica", "B", 10)
	attendanceRow(pdf, attendanceWidths, doc.Overall, true)
	pdf.Ln(4)

	// Exams
	sectionTitle(pdf, "Exam Records")
	examWidths := []float64{30, 76, 22, 24, 28}
	tableHeader(pdf, examWidths, []string{"Exam Type", "Subjects", "Marks", "Max Marks", "Percentage"})
	pdf.SetFont("Helvetica", "", 9)
	if len(doc.Exams) == 0 {
		pdf.CellFormat(contentWidth, rowHeight, "No exam records available", "1", 1, "C", false, 0, "")
	}
	for _, e := range doc.Exams {
		pdf.CellFormat(examWidths[0], rowHeight, tr(e.Type), "1", 0, "L", false, 0, "")
		pdf.CellFormat(examWidths[1], rowHeight, tr(truncate(pdf, e.Subjects, examWidths[1]-2)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(examWidths[2], rowHeight, fmt.Sprintf("%d", e.Marks), "1", 0, "C", false, 0, "")
		pdf.CellFormat(examWidths[3], rowHeight, fmt.Sprintf("%d", e.MaxMarks), "1", 0, "C", false, 0, "")
		pdf.CellFormat(examWidths[4], rowHeight, fmt.Sprintf("%.1f%%", e.Percentage), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	// Performance summary
	sectionTitle(pdf, "Performance Summary")
	perfWidths := []float64{70, 55, 55}
	tableHeader(pdf, perfWidths, []string{"Exam Type", "Average Percentage", "Records"})
	pdf.SetFont("Helvetica", "", 10)
	for _, b := range doc.Performance.Buckets {
		pdf.CellFormat(perfWidths[0], rowHeight, b.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(perfWidths[1], rowHeight, fmt.Sprintf("%.1f%%", b.Average), "1", 0, "C", false, 0, "")
		pdf.CellFormat(perfWidths[2], rowHeight, b.RecordsLabel(), "1", 1, "C", false, 0, "")
	}
	if doc.Performance.HasOverall() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(perfWidths[0], rowHeight, "Overall Performance", "1", 0, "L", false, 0, "")
		pdf.CellFormat(perfWidths[1], rowHeight, fmt.Sprintf("%.1f%%", doc.Performance.Overall), "1", 0, "C", false, 0, "")
		pdf.CellFormat(perfWidths[2], rowHeight, doc.Performance.OverallRecordsLabel(), "1", 1, "C", false, 0, "")
	} else {
		pdf.CellFormat(contentWidth, rowHeight, "No performance data available", "1", 1, "C", false, 0, "")
	}
	pdf.Ln(8)

	// Closing lines
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 5, "Generated on: "+timeutil.FormatDateTime(doc.GeneratedAt), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, tr("This is an official document of "+doc.College+"."), "", 1, "L", false, 0, "")

	if err := pdf.Error(); err != nil {
		return nil, shared.WrapError("export", "ProgressDocument", shared.ErrExport, "render document", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, shared.WrapError("export", "ProgressDocument", shared.ErrExport, "write document", err)
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetFillColor(230, 236, 245)
	pdf.CellFormat(0, 8, title, "", 1, "L", true, 0, "")
	pdf.Ln(1)
}

func tableHeader(pdf *gofpdf.Fpdf, widths []float64, headers []string) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(68, 114, 196)
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		pdf.CellFormat(widths[i], rowHeight, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(0, 0, 0)
}

func attendanceRow(pdf *gofpdf.Fpdf, widths []float64, row AttendanceRow, fill bool) {
	if fill {
		pdf.SetFillColor(242, 242, 242)
	}
	pdf.CellFormat(widths[0], rowHeight, row.Month, "1", 0, "L", fill, 0, "")
	pdf.CellFormat(widths[1], rowHeight, fmt.Sprintf("%d", row.WorkingDays), "1", 0, "C", fill, 0, "")
	pdf.CellFormat(widths[2], rowHeight, fmt.Sprintf("%d", row.DaysPresent), "1", 0, "C", fill, 0, "")
	pdf.CellFormat(widths[3], rowHeight, fmt.Sprintf("%.1f%%", row.Percentage), "1", 0, "C", fill, 0, "")
	pdf.CellFormat(widths[4], rowHeight, row.Status, "1", 1, "C", fill, 0, "")
}

// truncate shortens s with an ellipsis until it fits width.
func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s + "..."
}
