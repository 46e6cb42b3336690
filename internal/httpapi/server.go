// Package httpapi exposes the assistant over JSON HTTP for the presentation layer.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/extractor"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/planfile"
)

const maxBodyBytes = 1 << 20

// Assistant is the runtime surface the handlers drive.
type Assistant interface {
	Process(ctx context.Context, query string) (*shopscale.Result, error)
	ExtractPlan(ctx context.Context, query string) (*shopscale.Plan, error)
	ResolvePlan(ctx context.Context, plan *shopscale.Plan) (*shopscale.Result, error)
	ProcessAsync(ctx context.Context, query string) (string, error)
	GetAsyncStatus(executionID string) (*shopscale.AsyncExecutionStatus, error)
	GetAsyncResult(executionID string) (*shopscale.Result, error)
	CancelAsyncProcess(executionID string) (bool, error)
	Session(id string) *shopscale.Session
}

// Server holds the handlers.
type Server struct {
	assistant Assistant
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewServer creates a Server. A nil logger discards request logs.
func NewServer(assistant Assistant, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{assistant: assistant, validate: extractor.NewValidator(), logger: logger}
}

// RegisterRoutes wires the HTTP routes onto r.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.Use(s.logRequests)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/plans", s.extractPlan).Methods(http.MethodPost)
	v1.HandleFunc("/plans/resolve", s.resolvePlan).Methods(http.MethodPost)
	v1.HandleFunc("/assist", s.assist).Methods(http.MethodPost)
	v1.HandleFunc("/assist/async", s.assistAsync).Methods(http.MethodPost)
	v1.HandleFunc("/executions/{id}", s.executionStatus).Methods(http.MethodGet)
	v1.HandleFunc("/executions/{id}", s.cancelExecution).Methods(http.MethodDelete)
}

// Handler returns a router with every route registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)
	return r
}

type queryRequest struct {
	Query     string `json:"query" validate:"notblank,max=1000"`
	SessionID string `json:"sessionId" validate:"omitempty,max=128"`
}

type resolveRequest struct {
	shopscale.Plan
	SessionID string `json:"sessionId" validate:"omitempty,max=128"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) extractPlan(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}
	plan, err := s.assistant.ExtractPlan(r.Context(), req.Query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if wantsYAML(r.Header.Get("Accept")) {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_ = planfile.Encode(w, planfile.FromPlan(req.Query, plan))
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) resolvePlan(w http.ResponseWriter, r *http.Request) {
	var plan *shopscale.Plan
	var sessionID string

	if wantsYAML(r.Header.Get("Content-Type")) {
		pf, err := planfile.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := pf.Validate(); err != nil {
			s.writeError(w, err)
			return
		}
		plan = pf.ToPlan()
	} else {
		var req resolveRequest
		if !s.decode(w, r, &req) {
			return
		}
		pf := planfile.FromPlan("", &req.Plan)
		if err := pf.Validate(); err != nil {
			s.writeError(w, err)
			return
		}
		plan = pf.ToPlan()
		plan.Raw = req.Raw
		sessionID = req.SessionID
	}

	var (
		result *shopscale.Result
		err    error
	)
	if sessionID != "" {
		result, err = s.assistant.Session(sessionID).SubmitPlan(r.Context(), plan)
	} else {
		result, err = s.assistant.ResolvePlan(r.Context(), plan)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAssistResponse(result))
}

func (s *Server) assist(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}

	var (
		result *shopscale.Result
		err    error
	)
	if req.SessionID != "" {
		result, err = s.assistant.Session(req.SessionID).Submit(r.Context(), req.Query)
	} else {
		result, err = s.assistant.Process(r.Context(), req.Query)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAssistResponse(result))
}

func (s *Server) assistAsync(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.assistant.ProcessAsync(r.Context(), req.Query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/executions/"+id)
	writeJSON(w, http.StatusAccepted, map[string]string{"executionId": id})
}

type executionResponse struct {
	Status *shopscale.AsyncExecutionStatus `json:"status"`
	Result *assistResponse                 `json:"result,omitempty"`
}

func (s *Server) executionStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, err := s.assistant.GetAsyncStatus(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := executionResponse{Status: status}
	if status.IsComplete {
		if result, err := s.assistant.GetAsyncResult(id); err == nil {
			view := newAssistResponse(result)
			resp.Result = &view
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cancelExecution(w http.ResponseWriter, r *http.Request) {
	cancelled, err := s.assistant.CancelAsyncProcess(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, shopscale.NewValidationError("request", "invalid JSON body", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeError(w, shopscale.NewValidationError("request", "request validation failed", err))
		return false
	}
	return true
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

// errorResponse maps pipeline errors to a status and a caller-safe message.
func errorResponse(err error) (int, errorBody) {
	var e *shopscale.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, errorBody{Code: shopscale.ErrCodeInternal, Message: "internal error"}
	}
	body := errorBody{Code: e.Code, Message: e.Message, Reason: string(e.Reason)}
	switch e.Code {
	case shopscale.ErrCodeValidation, shopscale.ErrCodeInvalidDirective:
		if e.Cause != nil {
			body.Message = e.Message + ": " + e.Cause.Error()
		}
		return http.StatusBadRequest, body
	case shopscale.ErrCodeNotFound:
		return http.StatusNotFound, body
	case shopscale.ErrCodePending:
		return http.StatusAccepted, body
	case shopscale.ErrCodeExtraction:
		body.Message = "We couldn't turn that request into a shopping plan. Please try again or rephrase it."
		return http.StatusBadGateway, body
	case shopscale.ErrCodeCatalog:
		return http.StatusBadGateway, body
	case shopscale.ErrCodeTimeout:
		return http.StatusGatewayTimeout, body
	case shopscale.ErrCodeCancelled:
		if errors.Is(err, shopscale.ErrSuperseded) {
			body.Message = "superseded by a newer query"
			return http.StatusConflict, body
		}
		return http.StatusServiceUnavailable, body
	}
	body.Message = "internal error"
	return http.StatusInternalServerError, body
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func wantsYAML(header string) bool {
	h := strings.ToLower(header)
	return strings.Contains(h, "yaml")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}
