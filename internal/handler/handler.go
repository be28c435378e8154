package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/rollcall/internal/auth"
	"github.com/pavelanni/rollcall/internal/cache"
	appI18n "github.com/pavelanni/rollcall/internal/i18n"
	"github.com/pavelanni/rollcall/internal/model"
	"github.com/pavelanni/rollcall/internal/picker"
	"github.com/pavelanni/rollcall/internal/report"
	"github.com/pavelanni/rollcall/internal/store"
)

// Error codes returned next to the localized detail message.
const (
	CodeUnauthorized    = "unauthorized"
	CodeBadCredentials  = "bad_credentials"
	CodeEmailRegistered = "email_registered"
	CodeValidation      = "validation"
	CodeBadRequest      = "bad_request"
	CodeClassNotFound   = "class_not_found"
	CodeStudentNotFound = "student_not_found"
	CodeCycleComplete   = "cycle_complete"
	CodeEmptyRoster     = "empty_roster"
	CodeInvalidScore    = "invalid_score"
	CodeImportFailed    = "import_failed"
	CodeInternal        = "internal"
)

const maxUploadSize = 10 << 20

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// MessageBody is returned by operations that have nothing else to report.
type MessageBody struct {
	Message string `json:"message"`
	Count   *int   `json:"count,omitempty"`
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	cache  *cache.Versioned
	issuer *auth.Issuer
	picker *picker.Picker
	config model.ServerConfig
}

// New creates a new Handler. A nil cache disables caching.
func New(s *store.Store, c cache.Cache, iss *auth.Issuer, cfg model.ServerConfig) (*Handler, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if iss == nil {
		return nil, errors.New("token issuer is required")
	}
	if c == nil {
		c = cache.Nop{}
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = auth.DefaultTokenTTL
	}
	return &Handler{store: s, cache: cache.NewVersioned(c), issuer: iss, picker: picker.New(nil), config: cfg}, nil
}

// Routes registers all HTTP routes under /api.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/token", h.handleToken)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/logout", h.handleLogout)
			r.Get("/me", h.handleMe)

			r.Get("/classes", h.handleListClasses)
			r.Post("/classes", h.handleCreateClass)
			r.Route("/classes/{classID}", func(r chi.Router) {
				r.Get("/", h.handleGetClass)
				r.Delete("/", h.handleDeleteClass)

				r.Get("/students", h.handleListStudents)
				r.Post("/students", h.handleCreateStudent)
				r.Delete("/students", h.handleDeleteAllStudents)
				r.Post("/students/upload", h.handleUploadStudents)
				r.Delete("/students/{studentID}", h.handleDeleteStudent)

				r.Get("/random-student", h.handleRandomStudent)
				r.Post("/cycle", h.handleStartCycle)

				r.Get("/assessments", h.handleListAssessments)
				r.Post("/assessments", h.handleCreateAssessment)

				r.Get("/statistics", h.handleStatistics)
				r.Get("/report.xlsx", h.handleReport(report.FormatXLSX))
				r.Get("/report.csv", h.handleReport(report.FormatCSV))
			})
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError responds with the localized message msgID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, msgID string) {
	writeJSON(w, status, ErrorBody{Detail: appI18n.T(r.Context(), msgID), Code: code})
}

// serverError logs err and responds with a generic 500.
func serverError(w http.ResponseWriter, r *http.Request, msg string, err error, args ...any) {
	slog.Error(msg, append(args, "error", err)...)
	writeError(w, r, http.StatusInternalServerError, CodeInternal, "ErrInternal")
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, MessageBody{Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Debug("decode request body", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "ErrBadRequest")
		return false
	}
	return true
}

// loadState returns the class state for the authenticated teacher, reading
// through the cache. It writes the error response itself and reports
// whether the caller may continue.
func (h *Handler) loadState(w http.ResponseWriter, r *http.Request) (*model.ClassState, bool) {
	ctx := r.Context()
	teacher := model.TeacherFromContext(ctx)
	classID := chi.URLParam(r, "classID")

	if state, ok := h.cache.Get(ctx, classID); ok {
		if state.Class.TeacherID != teacher.ID {
			writeError(w, r, http.StatusNotFound, CodeClassNotFound, "ErrClassNotFound")
			return nil, false
		}
		return state, true
	}

	version := h.cache.Version(classID)
	state, err := h.store.LoadClassState(teacher.ID, classID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, CodeClassNotFound, "ErrClassNotFound")
		return nil, false
	}
	if err != nil {
		serverError(w, r, "failed to load class", err, "class_id", classID)
		return nil, false
	}
	h.cache.PutIfCurrent(ctx, &state, version)
	return &state, true
}

// ownClass checks that the class in the URL belongs to the authenticated
// teacher without loading its roster.
func (h *Handler) ownClass(w http.ResponseWriter, r *http.Request) (model.Class, bool) {
	teacher := model.TeacherFromContext(r.Context())
	classID := chi.URLParam(r, "classID")
	class, err := h.store.GetClass(teacher.ID, classID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, CodeClassNotFound, "ErrClassNotFound")
		return model.Class{}, false
	}
	if err != nil {
		serverError(w, r, "failed to get class", err, "class_id", classID)
		return model.Class{}, false
	}
	return class, true
}

func (h *Handler) invalidate(r *http.Request, classID string) {
	h.cache.Invalidate(r.Context(), classID)
}
