package query

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/archive"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/exam"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

type fakeSource struct {
	calls     int
	lastQuery attendance.LowAttendanceQuery
	low       []attendance.LowAttendanceStudent
	class     *attendance.ClassAttendance
	err       error
}

func (f *fakeSource) GetAttendance(context.Context, string, attendance.AcademicYear, attendance.Month) (attendance.AttendanceRecord, error) {
	return attendance.AttendanceRecord{}, errors.New("not used")
}

func (f *fakeSource) GetClassAttendance(context.Context, int, string, attendance.AcademicYear, attendance.Month) (*attendance.ClassAttendance, error) {
	f.calls++
	return f.class, f.err
}

func (f *fakeSource) GetLowAttendance(_ context.Context, q attendance.LowAttendanceQuery) ([]attendance.LowAttendanceStudent, error) {
	f.calls++
	f.lastQuery = q
	return f.low, f.err
}

func TestLowAttendance_KeepsBackendOrder(t *testing.T) {
	src := &fakeSource{low: []attendance.LowAttendanceStudent{
		{StudentID: "b", Record: attendance.MustRecord(attendance.March, 20, 12)},
		{StudentID: "a", Record: attendance.MustRecord(attendance.March, 20, 5)},
	}}
	h := NewLowAttendanceHandler(src)

	res, err := h.Handle(context.Background(), LowAttendanceQuery{
		AcademicYear: "2024-2025", Month: "March", Threshold: 75, Year: 1, Group: "MPC",
	})
	require.NoError(t, err)

	assert.Equal(t, "b", res.Students[0].StudentID)
	assert.Equal(t, "a", res.Students[1].StudentID)
	assert.Equal(t, attendance.March, src.lastQuery.Month)
	assert.Equal(t, student.GroupMPC, src.lastQuery.Group)
	assert.Equal(t, 1, src.lastQuery.Year)
}

func TestLowAttendance_FiltersOptional(t *testing.T) {
	src := &fakeSource{}
	res, err := NewLowAttendanceHandler(src).Handle(context.Background(), LowAttendanceQuery{
		AcademicYear: "2024-2025", Month: "march", Threshold: 60,
	})
	require.NoError(t, err)
	assert.Zero(t, src.lastQuery.Year)
	assert.Empty(t, src.lastQuery.Group)
	assert.NotNil(t, res.Students)
}

func TestLowAttendance_ValidationBeforeNetwork(t *testing.T) {
	tests := []LowAttendanceQuery{
		{AcademicYear: "2024-2025", Month: "march", Threshold: 0},
		{AcademicYear: "2024-2025", Month: "march", Threshold: 101},
		{AcademicYear: "2024-2025", Month: "march", Threshold: 50, Year: 3},
		{AcademicYear: "2024-2025", Month: "march", Threshold: 50, Group: "arts"},
		{AcademicYear: "2024", Month: "march", Threshold: 50},
	}
	for _, q := range tests {
		src := &fakeSource{}
		_, err := NewLowAttendanceHandler(src).Handle(context.Background(), q)
		assert.True(t, shared.IsValidation(err), "%+v", q)
		assert.Zero(t, src.calls)
	}
}

func TestLowAnnualAttendance(t *testing.T) {
	entry := func(id string, present int) attendance.StudentRosterEntry {
		e := attendance.NewRosterEntry(student.Student{ID: id})
		e.Put(attendance.MustRecord(attendance.January, 20, present))
		return e
	}
	snap := attendance.RosterSnapshot{
		Generation: 2,
		State:      attendance.StatePartiallyLoaded,
		Entries:    []attendance.StudentRosterEntry{entry("c", 10), entry("a", 19), entry("b", 5)},
	}

	res, err := LowAnnualAttendance(snap, 75)
	require.NoError(t, err)
	require.Len(t, res.Students, 2)
	assert.Equal(t, "c", res.Students[0].StudentID)
	assert.Equal(t, "b", res.Students[1].StudentID)
	assert.Equal(t, attendance.StatusAverage, res.Students[0].Status)

	for _, bad := range []float64{0, math.NaN(), math.Inf(1)} {
		_, err = LowAnnualAttendance(snap, bad)
		assert.True(t, shared.IsValidation(err), "threshold %v", bad)
	}
}

func TestClassReport(t *testing.T) {
	src := &fakeSource{class: &attendance.ClassAttendance{
		Year: 1, Group: student.GroupMPC, Month: attendance.June, WorkingDays: 20,
		Students: []attendance.ClassStudentAttendance{
			{StudentID: "s1", Record: attendance.MustRecord(attendance.June, 20, 18)},
			{StudentID: "s2", Record: attendance.MustRecord(attendance.June, 20, 8)},
		},
	}}
	report, err := NewClassReportHandler(src).Handle(context.Background(), ClassReportQuery{
		Year: 1, Group: "mpc", AcademicYear: "2024-2025", Month: "june",
	})
	require.NoError(t, err)
	assert.Equal(t, 65.0, report.Percentage)
	assert.Equal(t, attendance.StatusGood, report.Rows[0].Status)
	assert.Equal(t, attendance.StatusPoor, report.Rows[1].Status)

	_, err = NewClassReportHandler(src).Handle(context.Background(), ClassReportQuery{Year: 3, Group: "mpc", AcademicYear: "2024-2025", Month: "june"})
	assert.True(t, shared.IsValidation(err))
}

type fakeDirectory struct{ s *student.Student }

func (f fakeDirectory) GetStudent(_ context.Context, id string) (*student.Student, error) {
	if f.s == nil || f.s.ID != id {
		return nil, shared.ErrStudentNotFound
	}
	return f.s, nil
}

func (f fakeDirectory) ListStudents(context.Context, student.Filter) ([]*student.Student, error) {
	return []*student.Student{f.s}, nil
}

type fakeYear struct{}

func (fakeYear) FetchStudentYear(_ context.Context, _ string, _ attendance.AcademicYear) (map[attendance.Month]attendance.AttendanceRecord, int) {
	return map[attendance.Month]attendance.AttendanceRecord{
		attendance.June: attendance.MustRecord(attendance.June, 20, 15),
		attendance.July: attendance.ZeroRecord(attendance.July),
	}, 1
}

type fakeExams struct {
	err     error
	listing *exam.StudentExams
}

func (f fakeExams) GetStudentExams(context.Context, string) (*exam.StudentExams, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.listing != nil {
		return f.listing, nil
	}
	return &exam.StudentExams{Exams: []exam.Record{{Type: exam.TypeUT1, Percentage: 80}}}, nil
}

type fakeRenderer struct {
	gotExams []exam.Record
	err      error
}

func (f *fakeRenderer) ProgressDocument(_ *student.Student, _ map[attendance.Month]attendance.AttendanceRecord, exams []exam.Record, _ attendance.AcademicYear) ([]byte, error) {
	f.gotExams = exams
	return []byte("%PDF-1.3"), f.err
}

func (f *fakeRenderer) Spreadsheet([]attendance.StudentRosterEntry) ([]byte, error) {
	return []byte("xlsx"), f.err
}

func TestProgressReport(t *testing.T) {
	s := &student.Student{ID: "s1", AdmissionNumber: "GJC/101", Name: "Ravi"}
	r := &fakeRenderer{}
	h := NewProgressReportHandler(fakeDirectory{s}, fakeYear{}, fakeExams{}, r, logger.Discard())

	rep, err := h.Handle(context.Background(), ProgressReportQuery{StudentID: "s1", AcademicYear: "2024-2025"})
	require.NoError(t, err)
	assert.Equal(t, "progress_card_GJC_101.pdf", rep.FileName)
	assert.Equal(t, 1, rep.MissingMonths)
	assert.True(t, rep.ExamsLoaded)
	assert.Len(t, r.gotExams, 1)
}

func TestProgressReport_OrdersSubjectsBySyllabus(t *testing.T) {
	listing := &exam.StudentExams{
		Group: student.GroupBIPC,
		Exams: []exam.Record{{
			Type: exam.TypeUT1,
			Subjects: []exam.SubjectScore{
				{Subject: "chemistry", Score: 40},
				{Subject: "sanskrit", Score: 30},
				{Subject: "english", Score: 45},
				{Subject: "math_a", Score: 50},
			},
		}},
	}
	names := func(r *fakeRenderer) []string { return r.gotExams[0].SubjectNames() }

	// Student's own group decides the syllabus.
	r := &fakeRenderer{}
	s := &student.Student{ID: "s1", Name: "Ravi", Group: student.GroupMPC}
	h := NewProgressReportHandler(fakeDirectory{s}, fakeYear{}, fakeExams{listing: listing}, r, logger.Discard())
	_, err := h.Handle(context.Background(), ProgressReportQuery{StudentID: "s1", AcademicYear: "2024-2025"})
	require.NoError(t, err)
	assert.Equal(t, []string{"english", "math_a", "chemistry", "sanskrit"}, names(r))

	// Without one, the listing's group is used.
	r = &fakeRenderer{}
	s = &student.Student{ID: "s1", Name: "Ravi"}
	h = NewProgressReportHandler(fakeDirectory{s}, fakeYear{}, fakeExams{listing: listing}, r, logger.Discard())
	_, err = h.Handle(context.Background(), ProgressReportQuery{StudentID: "s1", AcademicYear: "2024-2025"})
	require.NoError(t, err)
	assert.Equal(t, []string{"english", "chemistry", "sanskrit", "math_a"}, names(r))

	// The backend's listing is not modified.
	assert.Equal(t, "chemistry", listing.Exams[0].Subjects[0].Subject)
}

func TestProgressReport_ExamFailureRendersWithoutExams(t *testing.T) {
	s := &student.Student{ID: "s1", Name: "Ravi"}
	r := &fakeRenderer{}
	h := NewProgressReportHandler(fakeDirectory{s}, fakeYear{}, fakeExams{err: shared.ErrServiceUnavailable}, r, logger.Discard())

	rep, err := h.Handle(context.Background(), ProgressReportQuery{StudentID: "s1", AcademicYear: "2024-2025"})
	require.NoError(t, err)
	assert.False(t, rep.ExamsLoaded)
	assert.Empty(t, r.gotExams)
	assert.Equal(t, "progress_card_s1.pdf", rep.FileName)
}

func TestProgressReport_Errors(t *testing.T) {
	h := NewProgressReportHandler(fakeDirectory{}, fakeYear{}, fakeExams{}, &fakeRenderer{}, logger.Discard())

	_, err := h.Handle(context.Background(), ProgressReportQuery{StudentID: "nope", AcademicYear: "2024-2025"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(context.Background(), ProgressReportQuery{StudentID: "s1", AcademicYear: "24-25"})
	assert.True(t, shared.IsValidation(err))

	s := &student.Student{ID: "s1", Name: "Ravi"}
	h = NewProgressReportHandler(fakeDirectory{s}, fakeYear{}, fakeExams{}, &fakeRenderer{err: shared.ErrNoStudentIdentity}, logger.Discard())
	_, err = h.Handle(context.Background(), ProgressReportQuery{StudentID: "s1", AcademicYear: "2024-2025"})
	assert.True(t, shared.IsExport(err))
}

type fixedSnapshot attendance.RosterSnapshot

func (f fixedSnapshot) Current() attendance.RosterSnapshot { return attendance.RosterSnapshot(f) }

func TestRosterSpreadsheet(t *testing.T) {
	h := NewRosterSpreadsheetHandler(fixedSnapshot{Generation: 3, State: attendance.StatePartiallyLoaded, AcademicYear: "2024-2025"}, &fakeRenderer{})
	h.now = func() time.Time { return time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC) }

	sheet, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sheet.Generation)
	assert.Equal(t, "attendance_2024-2025_2025-02-03.xlsx", sheet.FileName)
}

func TestRosterFileName(t *testing.T) {
	now := time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "attendance_2024-2025_1-mpc_2025-02-03.xlsx", RosterFileName("2024-2025", "1-mpc", now))
	assert.Equal(t, "attendance_2025-02-03.xlsx", RosterFileName("", "", now))
}

func TestExportsHandler_NoRepository(t *testing.T) {
	h := NewExportsHandler(nil)

	list, err := h.List(context.Background(), archive.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = h.Get(context.Background(), "not-a-uuid")
	assert.True(t, shared.IsValidation(err))

	_, err = h.Get(context.Background(), "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	assert.True(t, shared.IsNotFound(err))
}
