package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gjc-vemulawada/attendance-hub/internal/application/command"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/query"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/roster"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/exam"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/export"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/external/backend"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/metrics"
	"github.com/gjc-vemulawada/attendance-hub/internal/interface/http/handlers"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeBackend struct {
	mu          sync.Mutex
	calls       int
	tokens      map[string]bool
	workingDays map[attendance.Month]int
	writes      int
	writeErr    error
	low         []attendance.LowAttendanceStudent
	lastLow     attendance.LowAttendanceQuery
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{tokens: map[string]bool{}, workingDays: map[attendance.Month]int{}}
}

func (f *fakeBackend) GetAttendance(ctx context.Context, _ string, _ attendance.AcademicYear, m attendance.Month) (attendance.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tokens[backend.TokenFromContext(ctx)] = true
	return attendance.MustRecord(m, 20, 15), nil
}

func (f *fakeBackend) GetClassAttendance(context.Context, int, string, attendance.AcademicYear, attendance.Month) (*attendance.ClassAttendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &attendance.ClassAttendance{Year: 1, Group: student.GroupMPC, Month: attendance.March, WorkingDays: 20}, nil
}

func (f *fakeBackend) GetLowAttendance(_ context.Context, q attendance.LowAttendanceQuery) ([]attendance.LowAttendanceStudent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastLow = q
	return f.low, nil
}

func (f *fakeBackend) SetWorkingDays(_ context.Context, m attendance.Month, _ attendance.AcademicYear, wd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	f.workingDays[m] = wd
	return nil
}

func (f *fakeBackend) GetWorkingDays(_ context.Context, _ attendance.AcademicYear, m attendance.Month) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workingDays[m], nil
}

func (f *fakeBackend) UpdateStudentAttendance(_ context.Context, _ string, _ attendance.AcademicYear, m attendance.Month, dp int) (attendance.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return attendance.AttendanceRecord{}, f.writeErr
	}
	return attendance.MustRecord(m, f.workingDays[m], dp), nil
}

func (f *fakeBackend) GetStudentExams(context.Context, string) (*exam.StudentExams, error) {
	return nil, errors.New("exams offline")
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDirectory struct {
	students []*student.Student
}

func (d *fakeDirectory) GetStudent(_ context.Context, id string) (*student.Student, error) {
	for _, s := range d.students {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, shared.ErrStudentNotFound
}

func (d *fakeDirectory) ListStudents(context.Context, student.Filter) ([]*student.Student, error) {
	return d.students, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HARNESS
// ══════════════════════════════════════════════════════════════════════════════

type harness struct {
	server  *Server
	backend *fakeBackend
	roster  *roster.Orchestrator
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	fb := newFakeBackend()
	dir := &fakeDirectory{students: []*student.Student{
		{ID: "s1", AdmissionNumber: "A-1", Name: "Ravi", Year: 1, Group: student.GroupMPC},
		{ID: "s2", AdmissionNumber: "A-2", Name: "Sita", Year: 1, Group: student.GroupMPC},
	}}
	log := logger.Discard()
	m := metrics.New()
	orch := roster.New(fb, roster.Config{FetchTimeout: time.Second}, roster.WithLogger(log))
	t.Cleanup(orch.Stop)

	renderer := export.NewRenderer("Test College")

	cfg := DefaultConfig()
	cfg.RateLimitPerSecond = 0
	cfg.StreamHeartbeat = 50 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	srv := NewServer(cfg, Dependencies{
		Roster:            orch,
		Students:          dir,
		SetWorkingDays:    command.NewSetWorkingDaysHandler(fb, log),
		UpdateAttendance:  command.NewUpdateStudentAttendanceHandler(fb, log),
		Archiver:          command.NewArchiver(nil, nil, log),
		ClassReport:       query.NewClassReportHandler(fb),
		LowAttendance:     query.NewLowAttendanceHandler(fb),
		ProgressReport:    query.NewProgressReportHandler(dir, orch, fb, renderer, log),
		RosterSpreadsheet: query.NewRosterSpreadsheetHandler(orch, renderer),
		Exports:           query.NewExportsHandler(nil),
		Metrics:           m,
		Logger:            log,
	})
	t.Cleanup(func() {
		if srv.rateLimiter != nil {
			srv.rateLimiter.Stop()
		}
	})

	return &harness{server: srv, backend: fb, roster: orch, metrics: m}
}

func (h *harness) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) JSONResponse {
	t.Helper()
	var raw struct {
		JSONResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.JSONResponse
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func TestHealth_WithoutChecker(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	env := decodeEnvelope(t, rec, nil)
	assert.True(t, env.Success)
}

func TestReady_OptionalCheckDoesNotBlock(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("redis", func(context.Context) error { return errors.New("down") }, true)
	checker.AddCheck("backend", func(context.Context) error { return nil }, false)

	status := checker.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Contains(t, status.Message, "redis")

	checker.AddCheck("postgres", func(context.Context) error { return errors.New("down") }, false)
	assert.False(t, checker.Check(context.Background()).Ready)
}

func TestMetricsEndpoint_RecordsRoutes(t *testing.T) {
	h := newHarness(t, nil)
	h.do(t, http.MethodGet, "/health", "")

	rec := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `attendance_hub_http_requests_total{route="GET /health",status="200"} 1`)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER
// ══════════════════════════════════════════════════════════════════════════════

func TestLoadRoster_FromStudentIDs(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/rosters/load",
		`{"academic_year":"2024-2025","student_ids":["s1","s2","s3"]}`,
		"Authorization", "Bearer caller-token")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp LoadRosterResponse
	decodeEnvelope(t, rec, &resp)
	assert.Equal(t, uint64(1), resp.Generation)
	assert.Equal(t, 3, resp.Students)

	require.Eventually(t, func() bool {
		return h.roster.Current().State == attendance.StateFullyLoaded
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 36, h.backend.callCount())
	h.backend.mu.Lock()
	assert.True(t, h.backend.tokens["caller-token"], "caller token reaches the backend")
	h.backend.mu.Unlock()

	cur := h.do(t, http.MethodGet, "/api/v1/rosters/current", "")
	var snap attendance.RosterSnapshot
	env := decodeEnvelope(t, cur, &snap)
	assert.Equal(t, 3, env.Meta.TotalCount)
	assert.Equal(t, attendance.StateFullyLoaded, snap.State)
	assert.InDelta(t, 75.0, snap.Entries[0].Summary.RoundedPercentage(), 0.001)
}

func TestLoadRoster_FromDirectory(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/rosters/load", `{"academic_year":"2024-2025","year":1,"group":"mpc"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		return h.roster.Current().State == attendance.StateFullyLoaded
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Ravi", h.roster.Current().Entries[0].Student.Name)
}

func TestLoadRoster_ValidationBeforeNetwork(t *testing.T) {
	h := newHarness(t, nil)

	for _, body := range []string{
		`{"academic_year":"2024"}`,
		`{"academic_year":"2024-2025","year":3}`,
		`{"academic_year":"2024-2025","group":"arts"}`,
		`{"academic_year":"2024-2025","student_ids":[""]}`,
		`{"academic_year":"2024-2025","unknown":1}`,
		``,
	} {
		rec := h.do(t, http.MethodPost, "/api/v1/rosters/load", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Zero(t, h.backend.callCount())
	assert.Equal(t, uint64(0), h.roster.Generation())
}

func TestOperatorRoutes_RequireAPIKey(t *testing.T) {
	hash, err := handlers.HashAPIKey("s3cret")
	require.NoError(t, err)
	h := newHarness(t, func(c *Config) { c.APIKeyHashes = []string{hash} })

	body := `{"academic_year":"2024-2025","student_ids":["s1"]}`

	rec := h.do(t, http.MethodPost, "/api/v1/rosters/load", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_api_key", decodeEnvelope(t, rec, nil).Error.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/rosters/load", body, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/rosters/load", body, "X-API-Key", "s3cret")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// Read routes stay open.
	rec = h.do(t, http.MethodGet, "/api/v1/rosters/current", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRosterLowAttendance(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.roster.LoadSync(context.Background(), roster.StudentsFromIDs([]string{"s1"}), "2024-2025")
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/v1/rosters/current/low?threshold=80", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res query.LowAnnualResult
	decodeEnvelope(t, rec, &res)
	require.Len(t, res.Students, 1)
	assert.Equal(t, "Good", res.Students[0].Status)

	rec = h.do(t, http.MethodGet, "/api/v1/rosters/current/low?threshold=70", "")
	decodeEnvelope(t, rec, &res)
	assert.Empty(t, res.Students)

	for _, q := range []string{"abc", "0", "101", "NaN", "Inf", "-Inf"} {
		rec = h.do(t, http.MethodGet, "/api/v1/rosters/current/low?threshold="+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestRosterStream_DeliversSnapshots(t *testing.T) {
	h := newHarness(t, nil)
	ts := httptest.NewServer(h.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/rosters/stream", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	events := readEvents(resp.Body)

	first := <-events
	assert.Equal(t, attendance.StateEmpty, first.State)

	_, _, err = h.roster.Load(context.Background(), roster.StudentsFromIDs([]string{"s1", "s2"}), "2024-2025")
	require.NoError(t, err)

	var last attendance.RosterSnapshot
	for snap := range events {
		assert.Equal(t, uint64(1), snap.Generation)
		assert.GreaterOrEqual(t, snap.LoadedMonths, last.LoadedMonths)
		last = snap
		if snap.State == attendance.StateFullyLoaded {
			break
		}
	}
	assert.Equal(t, attendance.StateFullyLoaded, last.State)
}

// readEvents parses "snapshot" events until the body ends.
func readEvents(body io.Reader) <-chan attendance.RosterSnapshot {
	out := make(chan attendance.RosterSnapshot, 16)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 1<<20), 1<<20)
		event := ""
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: ") && event == "snapshot":
				var snap attendance.RosterSnapshot
				if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap) == nil {
					out <- snap
				}
			case line == "":
				event = ""
			}
		}
	}()
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

func TestAnnualSummary_SumsBeforeDividing(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/attendance/summary", `{"records":[
		{"month":"june","working_days":4,"days_present":2},
		{"month":"July","working_days":30,"days_present":27},
		{"month":"august","working_days":0,"days_present":0}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AnnualSummaryResponse
	decodeEnvelope(t, rec, &resp)
	assert.Equal(t, 34, resp.TotalWorkingDays)
	assert.Equal(t, 29, resp.TotalDaysPresent)
	assert.InDelta(t, 85.3, resp.RoundedPercentage, 0.0001)
	assert.Equal(t, "Good", resp.Status)
}

func TestAnnualSummary_RejectsBadRecords(t *testing.T) {
	h := newHarness(t, nil)

	for _, body := range []string{
		`{"records":[{"month":"june","working_days":10,"days_present":11}]}`,
		`{"records":[{"month":"june","working_days":32,"days_present":1}]}`,
		`{"records":[{"month":"smarch","working_days":10,"days_present":1}]}`,
		`{"records":[{"month":"june","working_days":10,"days_present":1},{"month":"June","working_days":10,"days_present":1}]}`,
	} {
		rec := h.do(t, http.MethodPost, "/api/v1/attendance/summary", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestClassReport_BadYear(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/api/v1/attendance/class/x/mpc/2024-2025/march", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/attendance/class/1/mpc/2024-2025/march", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.backend.callCount())
}

func TestLowAttendance_PassesFilters(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.low = []attendance.LowAttendanceStudent{{StudentID: "s9", Record: attendance.MustRecord(attendance.March, 20, 5)}}

	rec := h.do(t, http.MethodGet, "/api/v1/attendance/low/2024-2025/march?threshold=60&year=2&group=BIPC", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, 60.0, h.backend.lastLow.Threshold)
	assert.Equal(t, 2, h.backend.lastLow.Year)
	assert.Equal(t, student.GroupBIPC, h.backend.lastLow.Group)

	env := decodeEnvelope(t, rec, nil)
	assert.Equal(t, 1, env.Meta.TotalCount)
}

func TestLowAttendance_MalformedYearRejected(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/v1/attendance/low/2024-2025/march?year=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, h.backend.callCount())
}

func TestSetWorkingDays(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPut, "/api/v1/attendance/working-days", `{"month":"march","academic_year":"2024-2025","working_days":0}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/api/v1/attendance/working-days", `{"month":"march","academic_year":"2024-2025","working_days":32}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/v1/attendance/working-days", `{"month":"march","academic_year":"2024-2025"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 1, h.backend.writes)
}

func TestUpdateAttendance(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.workingDays[attendance.March] = 20

	rec := h.do(t, http.MethodPut, "/api/v1/attendance/student/s1/2024-2025/march", `{"days_present":15}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]any
	decodeEnvelope(t, rec, &body)
	assert.Equal(t, "Good", body["status"])

	rec = h.do(t, http.MethodPut, "/api/v1/attendance/student/s1/2024-2025/march", `{"days_present":21}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.backend.writeErr = &backend.APIError{Endpoint: "attendance", StatusCode: 403, Detail: "not your class", Kind: shared.ErrForbidden}
	rec = h.do(t, http.MethodPut, "/api/v1/attendance/student/s1/2024-2025/march", `{"days_present":10}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not your class", decodeEnvelope(t, rec, nil).Error.Message)
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPORTS
// ══════════════════════════════════════════════════════════════════════════════

func TestRosterSpreadsheet_ExportsCurrentSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.roster.LoadSync(context.Background(), roster.StudentsFromIDs([]string{"s1"}), "2024-2025")
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/v1/exports/roster.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attendance_2024-2025_")
	assert.Equal(t, "1", rec.Header().Get("X-Roster-Generation"))
	assert.Equal(t, "no-store, no-cache, must-revalidate, max-age=0", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "PK", rec.Body.String()[:2])
}

func TestProgressReport(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/v1/exports/progress/s1?academic_year=2024-2025", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "progress_card_A-1.pdf")
	assert.Equal(t, "false", rec.Header().Get("X-Exams-Loaded"))
	assert.Equal(t, "0", rec.Header().Get("X-Missing-Months"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

	rec = h.do(t, http.MethodGet, "/api/v1/exports/progress/nobody?academic_year=2024-2025", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/exports/progress/s1?academic_year=2024", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExports_WithoutArchive(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/v1/exports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []json.RawMessage
	decodeEnvelope(t, rec, &list)
	assert.Empty(t, list)

	rec = h.do(t, http.MethodGet, "/api/v1/exports/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/exports/6f1c1d0e-8a4b-4f3e-9c55-0d6a1c2b3e4f", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{shared.NewValidationError("x", "y", "bad"), http.StatusBadRequest},
		{shared.ErrWorkingDaysRange, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", shared.ErrUnauthorized), http.StatusUnauthorized},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrStudentNotFound, http.StatusNotFound},
		{fmt.Errorf("render: %w", shared.ErrNoStudentIdentity), http.StatusUnprocessableEntity},
		{shared.WrapError("export", "Spreadsheet", shared.ErrExport, "write", errors.New("disk")), http.StatusInternalServerError},
		{shared.ErrBackendUnavailable, http.StatusBadGateway},
		{shared.ErrBackendTimeout, http.StatusGatewayTimeout},
		{shared.ErrBackendRateLimited, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := classifyError(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := newRateLimiter(2, time.Hour)
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestRateLimitMiddleware(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RateLimitPerSecond = 1 })

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/live", "").Code)
	rec := h.do(t, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(r))
	r.Header.Set("Authorization", "bearer abc")
	assert.Equal(t, "abc", bearerToken(r))
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(r))
}
