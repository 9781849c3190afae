package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gjc-vemulawada/attendance-hub/internal/application/command"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/query"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/roster"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/validation"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/archive"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
	"github.com/gjc-vemulawada/attendance-hub/pkg/timeutil"
)

// DefaultThreshold is used by the low attendance views when the caller
// gives none.
const DefaultThreshold = 75.0

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "Attendance Hub API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":  "/health",
			"roster":  "/api/v1/rosters/current",
			"stream":  "/api/v1/rosters/stream",
			"exports": "/api/v1/exports",
			"metrics": "/metrics",
		},
	})
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		code := http.StatusOK
		if !status.Ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, r, code, status)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": s.config.Version,
	})
}

// handleReady reports whether the hub can serve traffic.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive reports that the process is up.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// LoadRosterRequest starts a roster load. StudentIDs wins over the class
// filters when both are given.
type LoadRosterRequest struct {
	AcademicYear string   `json:"academic_year" validate:"required,academic_year"`
	Year         int      `json:"year" validate:"omitempty,oneof=1 2"`
	Group        string   `json:"group" validate:"omitempty,group"`
	Medium       string   `json:"medium" validate:"omitempty,oneof=english telugu"`
	StudentIDs   []string `json:"student_ids" validate:"omitempty,dive,required"`
}

// LoadRosterResponse acknowledges a started load.
type LoadRosterResponse struct {
	Generation   uint64 `json:"generation"`
	AcademicYear string `json:"academic_year"`
	Students     int    `json:"students"`
	StreamURL    string `json:"stream_url"`
}

// handleLoadRoster handles POST /api/v1/rosters/load. The load keeps running
// after the response; progress is read from /rosters/current or the stream.
func (s *Server) handleLoadRoster(w http.ResponseWriter, r *http.Request) {
	if s.deps.Roster == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Roster loading not configured")
		return
	}

	var req LoadRosterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validation.Struct("roster", "Load", req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	ay, _ := attendance.ParseAcademicYear(req.AcademicYear)

	ctx := r.Context()
	students, err := s.resolveStudents(ctx, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	run := archive.NewLoadRun(archive.TriggerAPI, ay.String(), len(students))
	run.ClassYear = req.Year
	run.ClassGroup = req.Group

	// The run outlives the request, so its bookkeeping must too.
	bg := context.WithoutCancel(ctx)
	s.deps.Archiver.StartRun(bg, run)

	gen, snapshots, err := s.deps.Roster.Load(ctx, students, ay)
	if err != nil {
		s.deps.Archiver.FinishRun(bg, run, attendance.EmptySnapshot(), err)
		writeDomainError(w, r, err)
		return
	}

	log := logger.FromContext(ctx)
	log.Info("roster load started",
		logger.Generation(gen),
		logger.AcademicYear(ay.String()),
		slog.Int("students", len(students)),
	)

	go func() {
		last := attendance.EmptySnapshot()
		for snap := range snapshots {
			last = snap
		}
		var loadErr error
		if last.State != attendance.StateFullyLoaded {
			loadErr = roster.ErrSuperseded
		}
		s.deps.Archiver.FinishRun(bg, run, last, loadErr)
	}()

	writeJSON(w, r, http.StatusAccepted, LoadRosterResponse{
		Generation:   gen,
		AcademicYear: ay.String(),
		Students:     len(students),
		StreamURL:    "/api/v1/rosters/stream",
	})
}

func (s *Server) resolveStudents(ctx context.Context, req LoadRosterRequest) ([]student.Student, error) {
	if len(req.StudentIDs) > 0 {
		return roster.StudentsFromIDs(req.StudentIDs), nil
	}
	if s.deps.Students == nil {
		return nil, shared.NewValidationError("roster", "Load", "student_ids is required")
	}
	group, _ := student.ParseGroup(req.Group)
	listed, err := s.deps.Students.ListStudents(ctx, student.Filter{
		Year:   req.Year,
		Group:  group,
		Medium: student.Medium(req.Medium),
	})
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	out := make([]student.Student, 0, len(listed))
	for _, st := range listed {
		if st != nil {
			out = append(out, *st)
		}
	}
	return out, nil
}

// handleCurrentRoster handles GET /api/v1/rosters/current
func (s *Server) handleCurrentRoster(w http.ResponseWriter, r *http.Request) {
	if s.deps.Roster == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Roster loading not configured")
		return
	}
	snap := s.deps.Roster.Current()
	writeJSONWithMeta(w, r, http.StatusOK, snap, &ResponseMeta{TotalCount: len(snap.Entries)})
}

// handleRosterStream handles GET /api/v1/rosters/stream as server-sent
// events. The current snapshot is sent first, then one event per publication.
func (s *Server) handleRosterStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Roster == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Roster loading not configured")
		return
	}

	sub, err := s.deps.Roster.Subscribe()
	if err != nil {
		writeJSONError(w, r, http.StatusServiceUnavailable, "stream_closed", "Roster stream is shutting down")
		return
	}
	defer s.deps.Roster.Unsubscribe(sub)

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := logger.FromContext(r.Context())
	if err := writeSnapshotEvent(w, s.deps.Roster.Current()); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		log.Warn("event stream does not support flushing", logger.Err(err))
		return
	}

	heartbeat := s.config.StreamHeartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeSnapshotEvent(w, snap); err != nil {
				log.Debug("event stream closed", logger.Err(err))
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeSnapshotEvent(w io.Writer, snap attendance.RosterSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: snapshot\nid: %d\ndata: %s\n\n", snap.Generation, data)
	return err
}

// handleRosterLowAttendance handles GET /api/v1/rosters/current/low
func (s *Server) handleRosterLowAttendance(w http.ResponseWriter, r *http.Request) {
	if s.deps.Roster == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Roster loading not configured")
		return
	}
	threshold, err := getQueryParamFloat(r, "threshold", DefaultThreshold)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	result, err := query.LowAnnualAttendance(s.deps.Roster.Current(), threshold)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{TotalCount: len(result.Students)})
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// AnnualSummaryRequest carries the monthly records of one student.
type AnnualSummaryRequest struct {
	Records []attendance.AttendanceRecord `json:"records"`
}

// AnnualSummaryResponse is the summary plus its display values.
type AnnualSummaryResponse struct {
	attendance.AnnualAttendanceSummary
	RoundedPercentage float64 `json:"rounded_percentage"`
	Status            string  `json:"status"`
}

// handleAnnualSummary handles POST /api/v1/attendance/summary
func (s *Server) handleAnnualSummary(w http.ResponseWriter, r *http.Request) {
	var req AnnualSummaryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	records := make(map[attendance.Month]attendance.AttendanceRecord, len(req.Records))
	for _, rec := range req.Records {
		month, err := attendance.ParseMonth(string(rec.Month))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if _, dup := records[month]; dup {
			writeDomainError(w, r, shared.NewValidationError("attendance", "Summary", "duplicate month "+month.String()))
			return
		}
		valid, err := attendance.NewAttendanceRecord(month, rec.WorkingDays, rec.DaysPresent)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		records[month] = valid
	}

	summary := attendance.ComputeAnnualSummary(records)
	writeJSON(w, r, http.StatusOK, AnnualSummaryResponse{
		AnnualAttendanceSummary: summary,
		RoundedPercentage:       summary.RoundedPercentage(),
		Status:                  summary.Status(),
	})
}

// handleClassReport handles GET /api/v1/attendance/class/{year}/{group}/{ay}/{month}
func (s *Server) handleClassReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.ClassReport == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Class reports not configured")
		return
	}
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		writeDomainError(w, r, shared.NewValidationError("attendance", "ClassReport", "year must be 1 or 2"))
		return
	}

	report, err := s.deps.ClassReport.Handle(r.Context(), query.ClassReportQuery{
		Year:         year,
		Group:        r.PathValue("group"),
		AcademicYear: r.PathValue("ay"),
		Month:        r.PathValue("month"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// handleLowAttendance handles GET /api/v1/attendance/low/{ay}/{month}
func (s *Server) handleLowAttendance(w http.ResponseWriter, r *http.Request) {
	if s.deps.LowAttendance == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Low attendance listing not configured")
		return
	}
	threshold, err := getQueryParamFloat(r, "threshold", DefaultThreshold)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	year, err := getQueryParamInt(r, "year", 0)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := s.deps.LowAttendance.Handle(r.Context(), query.LowAttendanceQuery{
		AcademicYear: r.PathValue("ay"),
		Month:        r.PathValue("month"),
		Threshold:    threshold,
		Year:         year,
		Group:        r.URL.Query().Get("group"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{TotalCount: len(result.Students)})
}

// handleSetWorkingDays handles PUT /api/v1/attendance/working-days
func (s *Server) handleSetWorkingDays(w http.ResponseWriter, r *http.Request) {
	if s.deps.SetWorkingDays == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Attendance writes not configured")
		return
	}
	var cmd command.SetWorkingDaysCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	result, err := s.deps.SetWorkingDays.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// updateAttendanceBody is the body of the per-student update; the rest of the
// command comes from the path.
type updateAttendanceBody struct {
	DaysPresent *int `json:"days_present"`
}

// handleUpdateAttendance handles PUT /api/v1/attendance/student/{id}/{ay}/{month}
func (s *Server) handleUpdateAttendance(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpdateAttendance == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Attendance writes not configured")
		return
	}
	var body updateAttendanceBody
	if !decodeJSON(w, r, &body) {
		return
	}
	record, err := s.deps.UpdateAttendance.Handle(r.Context(), command.UpdateStudentAttendanceCommand{
		StudentID:    r.PathValue("id"),
		AcademicYear: r.PathValue("ay"),
		Month:        r.PathValue("month"),
		DaysPresent:  body.DaysPresent,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"student_id":    r.PathValue("id"),
		"academic_year": r.PathValue("ay"),
		"record":        record,
		"percentage":    record.Percentage(),
		"status":        record.Status(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRosterSpreadsheet handles GET /api/v1/exports/roster.xlsx. Whatever
// the current snapshot holds is exported, partial or not.
func (s *Server) handleRosterSpreadsheet(w http.ResponseWriter, r *http.Request) {
	if s.deps.RosterSpreadsheet == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Spreadsheet export not configured")
		return
	}
	sheet, err := s.deps.RosterSpreadsheet.Handle(r.Context())
	s.recordExport(archive.KindSpreadsheet, err)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	e := archive.NewExport(archive.KindSpreadsheet, sheet.AcademicYear.String(), sheet.FileName, sheet.Content)
	e.Generation = sheet.Generation
	s.archiveExport(w, r, e)

	w.Header().Set("X-Roster-Generation", strconv.FormatUint(sheet.Generation, 10))
	w.Header().Set("X-Roster-State", string(sheet.State))
	writeFile(w, archive.ContentTypeXLSX, sheet.FileName, sheet.Content)
}

// handleProgressReport handles GET /api/v1/exports/progress/{id}
func (s *Server) handleProgressReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.ProgressReport == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Progress reports not configured")
		return
	}
	ay := r.URL.Query().Get("academic_year")
	if ay == "" {
		ay = timeutil.CurrentAcademicYear()
	}

	report, err := s.deps.ProgressReport.Handle(r.Context(), query.ProgressReportQuery{
		StudentID:    r.PathValue("id"),
		AcademicYear: ay,
	})
	if !errors.Is(err, shared.ErrNotFound) && !shared.IsValidation(err) {
		s.recordExport(archive.KindProgress, err)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	e := archive.NewExport(archive.KindProgress, report.AcademicYear.String(), report.FileName, report.Content)
	e.StudentID = report.Student.ID
	s.archiveExport(w, r, e)

	w.Header().Set("X-Missing-Months", strconv.Itoa(report.MissingMonths))
	w.Header().Set("X-Exams-Loaded", strconv.FormatBool(report.ExamsLoaded))
	writeFile(w, archive.ContentTypePDF, report.FileName, report.Content)
}

// handleListExports handles GET /api/v1/exports
func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exports == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Export archive not configured")
		return
	}
	limit, err := getQueryParamInt(r, "limit", 50)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	q := r.URL.Query()
	exports, err := s.deps.Exports.List(r.Context(), archive.ListFilter{
		Kind:         archive.Kind(q.Get("kind")),
		AcademicYear: q.Get("academic_year"),
		StudentID:    q.Get("student_id"),
		Limit:        limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, exports, &ResponseMeta{TotalCount: len(exports)})
}

// handleGetExport handles GET /api/v1/exports/{id}
func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exports == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Export archive not configured")
		return
	}
	e, err := s.deps.Exports.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("X-Export-ID", e.ID.String())
	writeFile(w, e.ContentType(), e.FileName, e.Content)
}

// archiveExport stores a generated file. A failure is logged by the archiver and
// does not fail the download.
func (s *Server) archiveExport(w http.ResponseWriter, r *http.Request, e *archive.Export) {
	if !s.deps.Archiver.Enabled() {
		return
	}
	if err := s.deps.Archiver.SaveExport(context.WithoutCancel(r.Context()), e); err != nil {
		return
	}
	w.Header().Set("X-Export-ID", e.ID.String())
}

func (s *Server) recordExport(kind archive.Kind, err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ExportRendered(string(kind), err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DECODING
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSON reads a JSON body into dst, rejecting unknown fields. It writes
// the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
		case errors.Is(err, io.EOF):
			writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "Request body is required")
		default:
			writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "Invalid JSON body: "+err.Error())
		}
		return false
	}
	return true
}
