// Package backend is the client for the college attendance REST API. It is
// the only place that knows the backend's URLs and payloads; everything it
// returns is a domain value.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/exam"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
	"github.com/gjc-vemulawada/attendance-hub/pkg/circuitbreaker"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
	"github.com/gjc-vemulawada/attendance-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RequestObserver receives one call per HTTP attempt.
type RequestObserver interface {
	ObserveBackendRequest(endpoint, outcome string, elapsed time.Duration)
}

// BreakerObserver is implemented by observers that also track the breaker.
type BreakerObserver interface {
	SetBreakerState(target string, state int)
}

// ClientConfig contains configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the API root, without a trailing slash
	BaseURL string

	// ServiceToken is sent when the context carries no caller token
	ServiceToken string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	RateLimiterConfig RateLimiterConfig

	// Retries apply to GET requests only.
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Circuit breaker
	BreakerThreshold int
	BreakerTimeout   time.Duration

	Logger   *slog.Logger
	Observer RequestObserver

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:           baseURL,
		Timeout:           15 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
		MaxAttempts:       3,
		RetryBaseDelay:    200 * time.Millisecond,
		RetryMaxDelay:     3 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLER TOKEN
// ══════════════════════════════════════════════════════════════════════════════

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the caller's bearer token, if any.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements attendance.Source, attendance.Writer, exam.Source and
// student.Directory over HTTP.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.Breaker
	retrier     *retry.Retrier
	mapper      *Mapper
}

var (
	_ attendance.Source = (*Client)(nil)
	_ attendance.Writer = (*Client)(nil)
	_ exam.Source       = (*Client)(nil)
	_ student.Directory = (*Client)(nil)
)

// NewClient creates a new backend client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	c := &Client{
		config:      config,
		httpClient:  httpClient,
		logger:      config.Logger.With(slog.String("component", "backend_client")),
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		mapper:      NewMapper(),
	}

	c.breaker = circuitbreaker.Backend(
		config.BreakerThreshold,
		config.BreakerTimeout,
		isTransient,
		func(name string, from, to circuitbreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if bo, ok := config.Observer.(BreakerObserver); ok {
				bo.SetBreakerState(name, int(to))
			}
		},
	)

	c.retrier = retry.BackendRetrier().With(
		retry.WithMaxAttempts(config.MaxAttempts),
		retry.WithInitialDelay(config.RetryBaseDelay),
		retry.WithMaxDelay(config.RetryMaxDelay),
		retry.WithRetryIf(isTransient),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			c.logger.Debug("retrying backend request",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)

	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetAttendance fetches one student's month.
func (c *Client) GetAttendance(ctx context.Context, studentID string, ay attendance.AcademicYear, month attendance.Month) (attendance.AttendanceRecord, error) {
	path := fmt.Sprintf("/attendance/student/%s/%s/%s",
		url.PathEscape(studentID), url.PathEscape(ay.String()), url.PathEscape(month.String()))

	var dto MonthlyAttendanceDTO
	if err := c.get(ctx, "attendance.student", path, &dto); err != nil {
		return attendance.AttendanceRecord{}, fmt.Errorf("get attendance %s %s: %w", studentID, month, err)
	}
	return c.mapper.RecordFromDTO(month, &dto)
}

// GetClassAttendance fetches a class month listing.
func (c *Client) GetClassAttendance(ctx context.Context, year int, group string, ay attendance.AcademicYear, month attendance.Month) (*attendance.ClassAttendance, error) {
	path := fmt.Sprintf("/attendance/class/%d/%s/%s/%s",
		year, url.PathEscape(group), url.PathEscape(ay.String()), url.PathEscape(month.String()))

	var dto ClassAttendanceDTO
	if err := c.get(ctx, "attendance.class", path, &dto); err != nil {
		return nil, fmt.Errorf("get class attendance %d/%s: %w", year, group, err)
	}
	return c.mapper.ClassAttendanceFromDTO(month, ay, &dto)
}

// GetLowAttendance runs the backend's low-attendance query. Year and group
// are sent only when set.
func (c *Client) GetLowAttendance(ctx context.Context, q attendance.LowAttendanceQuery) ([]attendance.LowAttendanceStudent, error) {
	params := url.Values{}
	params.Set("percentage_threshold", strconv.FormatFloat(q.Threshold, 'f', -1, 64))
	if q.Year > 0 {
		params.Set("year", strconv.Itoa(q.Year))
	}
	if q.Group != "" {
		params.Set("group", string(q.Group))
	}

	path := fmt.Sprintf("/attendance/low-attendance/%s/%s?%s",
		url.PathEscape(q.AcademicYear.String()), url.PathEscape(q.Month.String()), params.Encode())

	var dto LowAttendanceDTO
	if err := c.get(ctx, "attendance.low", path, &dto); err != nil {
		return nil, fmt.Errorf("get low attendance: %w", err)
	}
	return c.mapper.LowAttendanceFromDTO(q.Month, &dto), nil
}

// SetWorkingDays sets a month's working days. Writes are never retried.
func (c *Client) SetWorkingDays(ctx context.Context, month attendance.Month, ay attendance.AcademicYear, workingDays int) error {
	body := WorkingDaysRequestDTO{
		Month:        month.String(),
		AcademicYear: ay.String(),
		WorkingDays:  workingDays,
	}

	var dto WorkingDaysDTO
	if err := c.send(ctx, "attendance.working_days.set", http.MethodPost, "/attendance/working-days", body, &dto); err != nil {
		return fmt.Errorf("set working days %s %s: %w", ay, month, err)
	}
	return nil
}

// GetWorkingDays reads a month's working days.
func (c *Client) GetWorkingDays(ctx context.Context, ay attendance.AcademicYear, month attendance.Month) (int, error) {
	path := fmt.Sprintf("/attendance/working-days/%s/%s", url.PathEscape(ay.String()), url.PathEscape(month.String()))

	var dto WorkingDaysDTO
	if err := c.get(ctx, "attendance.working_days.get", path, &dto); err != nil {
		return 0, fmt.Errorf("get working days %s %s: %w", ay, month, err)
	}
	return int(dto.WorkingDays), nil
}

// UpdateStudentAttendance records days present for one student month.
func (c *Client) UpdateStudentAttendance(ctx context.Context, studentID string, ay attendance.AcademicYear, month attendance.Month, daysPresent int) (attendance.AttendanceRecord, error) {
	path := fmt.Sprintf("/attendance/student/%s/%s/%s",
		url.PathEscape(studentID), url.PathEscape(ay.String()), url.PathEscape(month.String()))

	var dto AttendanceRecordDTO
	if err := c.send(ctx, "attendance.student.update", http.MethodPut, path, AttendanceUpdateDTO{DaysPresent: daysPresent}, &dto); err != nil {
		return attendance.AttendanceRecord{}, fmt.Errorf("update attendance %s %s: %w", studentID, month, err)
	}
	return attendance.RecordFromCounts(month, int(dto.WorkingDays), int(dto.DaysPresent)), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAM AND STUDENT OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentExams fetches a student's exam listing.
func (c *Client) GetStudentExams(ctx context.Context, studentID string) (*exam.StudentExams, error) {
	var dto StudentExamsDTO
	if err := c.get(ctx, "exams.student", "/exams/student/"+url.PathEscape(studentID), &dto); err != nil {
		return nil, fmt.Errorf("get exams %s: %w", studentID, err)
	}
	return c.mapper.StudentExamsFromDTO(&dto)
}

// GetStudent fetches one student.
func (c *Client) GetStudent(ctx context.Context, id string) (*student.Student, error) {
	var dto StudentDTO
	if err := c.get(ctx, "students.get", "/students/"+url.PathEscape(id), &dto); err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.WrapError("student", "GetStudent", shared.ErrNotFound, "student "+id+" not found", err)
		}
		return nil, fmt.Errorf("get student %s: %w", id, err)
	}
	return c.mapper.StudentFromDTO(&dto)
}

// ListStudents lists students. Malformed entries are logged and skipped.
func (c *Client) ListStudents(ctx context.Context, filter student.Filter) ([]*student.Student, error) {
	params := url.Values{}
	if filter.Year > 0 {
		params.Set("year", strconv.Itoa(filter.Year))
	}
	if filter.Group != "" {
		params.Set("group", string(filter.Group))
	}
	if filter.Medium != "" {
		params.Set("medium", string(filter.Medium))
	}

	path := "/students/"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var dtos []StudentDTO
	if err := c.get(ctx, "students.list", path, &dtos); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	students, errs := c.mapper.StudentsFromDTOs(dtos)
	for _, err := range errs {
		c.logger.Warn("skipping malformed student", logger.Err(err))
	}
	return students, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// get performs an idempotent read with retries, circuit breaking and rate limiting.
func (c *Client) get(ctx context.Context, endpoint, path string, result any) error {
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.doSingleRequest(ctx, endpoint, http.MethodGet, path, nil, result)
		})
	})
}

// send performs a write. Writes go through the breaker but are attempted once.
func (c *Client) send(ctx context.Context, endpoint, method, path string, body, result any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.doSingleRequest(ctx, endpoint, method, path, body, result)
	})
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, endpoint, method, path string, body, result any) (err error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			return shared.WrapError("backend", endpoint, shared.ErrRateLimited, "client rate limit", err)
		}
		return err
	}

	start := time.Now()
	defer func() {
		if c.config.Observer != nil {
			c.config.Observer.ObserveBackendRequest(endpoint, outcome(err), time.Since(start))
		}
	}()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("backend request", slog.String("method", method), slog.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return shared.WrapError("backend", endpoint, shared.ErrServiceUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return shared.WrapError("backend", endpoint, shared.ErrTransientFetch, "read response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.rateLimiter.RecordRateLimitHit(parseRetryAfter(resp.Header.Get("Retry-After")))
	}

	if resp.StatusCode >= 400 {
		return newAPIError(endpoint, resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &MappingError{Message: "unmarshal " + endpoint + " response", Cause: errors.Join(shared.ErrBackendInvalidResponse, err)}
		}
	}

	return nil
}

func (c *Client) token(ctx context.Context) string {
	if t := TokenFromContext(ctx); t != "" {
		return t
	}
	return c.config.ServiceToken
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// isTransient reports whether a failure is the backend's rather than the caller's.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return false
	}
	return shared.IsRetryable(err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case shared.IsAuthorization(err):
		return "unauthorized"
	case shared.IsNotFound(err):
		return "not_found"
	case shared.IsValidation(err):
		return "invalid"
	case isTransient(err):
		return "transient"
	default:
		return "error"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ClientStatus is the client's view of the backend for health checks.
type ClientStatus struct {
	RateLimiter    RateLimiterStatus       `json:"rate_limiter"`
	CircuitBreaker circuitbreaker.Snapshot `json:"circuit_breaker"`
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	return ClientStatus{
		RateLimiter:    c.rateLimiter.Status(),
		CircuitBreaker: c.breaker.Snapshot(),
	}
}

// Healthy reports whether requests are currently let through.
func (c *Client) Healthy() bool {
	return c.breaker.State() != circuitbreaker.StateOpen
}
