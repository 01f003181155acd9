package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ndmx/upscale/internal/application/command"
	"github.com/ndmx/upscale/internal/application/query"
	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/shared"
	"github.com/ndmx/upscale/internal/interface/http/handlers"
	"github.com/ndmx/upscale/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DTOs
// ══════════════════════════════════════════════════════════════════════════════

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"max=100"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type initiateRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
	Plan     string `json:"plan" validate:"required,oneof=full installment"`
}

type modulePath struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
	Position int    `json:"position" validate:"gte=1"`
}

type securityEventsQuery struct {
	Limit int `json:"limit" validate:"gte=0,lte=100"`
}

type callbackQuery struct {
	Reference string `json:"reference" validate:"required,max=100"`
}

// authResponse is returned by register and login.
type authResponse struct {
	Account query.AccountView `json:"account"`
	Session handlers.Session  `json:"session"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy", "uptime": s.Uptime().String()})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH
// ══════════════════════════════════════════════════════════════════════════════

// handleRegister handles POST /api/v1/auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	acc, err := s.deps.Auth.Register(r.Context(), command.RegisterCommand{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Origin:   s.clientIP(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondWithSession(w, r, http.StatusCreated, acc)
}

// handleLogin handles POST /api/v1/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	acc, err := s.deps.Auth.Login(r.Context(), command.LoginCommand{
		Email:    req.Email,
		Password: req.Password,
		Origin:   s.clientIP(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondWithSession(w, r, http.StatusOK, acc)
}

func (s *Server) respondWithSession(w http.ResponseWriter, r *http.Request, status int, acc query.AccountView) {
	sess, err := s.deps.Sessions.Issue(acc.ID, acc.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, status, authResponse{Account: acc, Session: sess})
}

// handleMe handles GET /api/v1/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acc, err := s.deps.Auth.Me(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, acc)
}

// handleSecurityEvents handles GET /api/v1/me/security-events?limit=N
func (s *Server) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	var q securityEventsQuery
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, &validationError{fields: map[string]string{"limit": "must be a number"}})
			return
		}
		q.Limit = n
	}
	if err := s.check(&q); err != nil {
		s.writeError(w, r, err)
		return
	}

	events, err := s.deps.Security.List(r.Context(), accountID(r), q.Limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONList(w, r, events, len(events))
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG & PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// handleListCourses handles GET /api/v1/courses
func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.deps.Courses.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONList(w, r, courses, len(courses))
}

// handleGetCourse handles GET /api/v1/courses/{courseID}
func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := s.deps.Courses.Get(r.Context(), r.PathValue("courseID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, course)
}

// handleGetModule handles GET /api/v1/courses/{courseID}/modules/{position}
func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	p, err := s.modulePath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	module, err := s.deps.Courses.GetModule(r.Context(), query.GetModuleQuery{
		AccountID: accountID(r),
		CourseID:  p.CourseID,
		Position:  p.Position,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, module)
}

// handleCompleteModule handles POST /api/v1/courses/{courseID}/modules/{position}/complete
func (s *Server) handleCompleteModule(w http.ResponseWriter, r *http.Request) {
	p, err := s.modulePath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.CompleteModule.Handle(r.Context(), command.CompleteModuleCommand{
		AccountID: accountID(r),
		CourseID:  p.CourseID,
		Position:  p.Position,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleDashboard handles GET /api/v1/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Dashboard.Handle(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}

func (s *Server) modulePath(r *http.Request) (modulePath, error) {
	p := modulePath{CourseID: r.PathValue("courseID")}
	pos, err := strconv.Atoi(r.PathValue("position"))
	if err != nil {
		return p, &validationError{fields: map[string]string{"position": "must be a number"}}
	}
	p.Position = pos
	return p, s.check(&p)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENTS & PAYMENTS
// ══════════════════════════════════════════════════════════════════════════════

// handleInitiateEnrollment handles POST /api/v1/enrollments
func (s *Server) handleInitiateEnrollment(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Enrollment.Initiate(r.Context(), command.InitiateEnrollmentCommand{
		AccountID:   accountID(r),
		CourseID:    req.CourseID,
		Plan:        enrollment.Plan(req.Plan),
		CallbackURL: s.config.CallbackURL(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, res)
}

// handleListEnrollments handles GET /api/v1/enrollments
func (s *Server) handleListEnrollments(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Enrollments.List(r.Context(), accountID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONList(w, r, list, len(list))
}

// handleGetEnrollment handles GET /api/v1/enrollments/{intentID}
func (s *Server) handleGetEnrollment(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Enrollments.Get(r.Context(), accountID(r), r.PathValue("intentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}

// handlePayInstallment handles POST /api/v1/enrollments/{intentID}/installments
func (s *Server) handlePayInstallment(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Enrollment.PayInstallment(r.Context(), command.PayInstallmentCommand{
		AccountID:   accountID(r),
		IntentID:    r.PathValue("intentID"),
		CallbackURL: s.config.CallbackURL(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, res)
}

// handlePaymentCallback handles GET /api/v1/payments/callback?reference=…
// Only the reference is taken from the request; the outcome always comes
// from verifying it with the gateway.
func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	q := callbackQuery{Reference: r.URL.Query().Get("reference")}
	if q.Reference == "" {
		q.Reference = r.URL.Query().Get("trxref")
	}
	if err := s.check(&q); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Enrollment.Confirm(r.Context(), command.ConfirmPaymentCommand{Reference: q.Reference})

	if s.config.PaymentRedirectURL != "" {
		s.redirectAfterPayment(w, r, q.Reference, res, err)
		return
	}
	if errors.Is(err, shared.ErrVerificationFailed) && res != nil {
		writeEnvelope(w, http.StatusPaymentRequired, JSONResponse{
			Data:      res,
			Error:     &APIError{Code: "verification_failed", Message: publicMessage(err, shared.ErrVerificationFailed, http.StatusPaymentRequired)},
			Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: apiVersion},
			RequestID: getRequestID(r.Context()),
		})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) redirectAfterPayment(w http.ResponseWriter, r *http.Request, reference string, res *command.ConfirmResult, err error) {
	target, perr := url.Parse(s.config.PaymentRedirectURL)
	if perr != nil {
		s.writeError(w, r, perr)
		return
	}
	status := "error"
	if res != nil {
		status = res.Intent.Status
	}
	if err != nil {
		logger.FromContext(r.Context()).Warn("payment callback", logger.Reference(reference), logger.Err(err))
	}
	v := target.Query()
	v.Set("reference", reference)
	v.Set("status", status)
	target.RawQuery = v.Encode()
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

// accountID returns the subject of the verified session.
func accountID(r *http.Request) string {
	if c, ok := handlers.SessionFrom(r.Context()); ok {
		return c.Subject
	}
	return ""
}
