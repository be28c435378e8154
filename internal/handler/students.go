package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/rollcall/internal/i18n"
	"github.com/pavelanni/rollcall/internal/importer"
	"github.com/pavelanni/rollcall/internal/model"
	"github.com/pavelanni/rollcall/internal/store"
)

type createStudentRequest struct {
	StudentNumber string  `json:"student_number"`
	Name          *string `json:"name"`
}

type uploadRequest struct {
	Content string `json:"content"`
}

// ImportResponse reports the students added by an upload.
type ImportResponse struct {
	Message  string          `json:"message"`
	Count    int             `json:"count"`
	Students []model.Student `json:"students"`
}

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	state, ok := h.loadState(w, r)
	if !ok {
		return
	}
	students := state.Students
	if students == nil {
		students = []model.Student{}
	}
	writeJSON(w, http.StatusOK, students)
}

func (h *Handler) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	number := strings.TrimSpace(req.StudentNumber)
	if number == "" {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "ErrRequiredFields")
		return
	}
	var name *string
	if req.Name != nil {
		if n := strings.TrimSpace(*req.Name); n != "" {
			name = &n
		}
	}

	class, ok := h.ownClass(w, r)
	if !ok {
		return
	}
	student, err := h.store.CreateStudent(class.ID, model.RosterEntry{StudentNumber: number, Name: name})
	if err != nil {
		serverError(w, r, "failed to create student", err, "class_id", class.ID)
		return
	}
	h.invalidate(r, class.ID)
	writeJSON(w, http.StatusCreated, student)
}

// handleUploadStudents imports a roster. JSON bodies carry CSV text in
// "content"; multipart bodies carry a CSV or XLSX file in "file".
func (h *Handler) handleUploadStudents(w http.ResponseWriter, r *http.Request) {
	class, ok := h.ownClass(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	var (
		entries []model.RosterEntry
		err     error
		source  string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeError(w, r, http.StatusBadRequest, CodeBadRequest, "ErrBadRequest")
			return
		}
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, r, http.StatusBadRequest, CodeValidation, "ErrRequiredFields")
			return
		}
		defer file.Close()
		source = header.Filename
		entries, err = importer.Parse(header.Filename, file)
	} else {
		var req uploadRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		source = "content"
		entries, err = importer.ParseCSV(req.Content)
	}
	if err != nil {
		slog.Info("rejected roster upload", "class_id", class.ID, "source", source, "error", err)
		var rowErr *importer.RowError
		if errors.As(err, &rowErr) {
			writeJSON(w, http.StatusBadRequest, ErrorBody{
				Detail: appI18n.Td(r.Context(), "ErrImportRow", map[string]any{"Row": rowErr.Row, "Reason": rowErr.Reason}),
				Code:   CodeImportFailed,
			})
			return
		}
		writeError(w, r, http.StatusBadRequest, CodeImportFailed, "ErrImportFailed")
		return
	}

	students, err := h.store.CreateStudents(class.ID, entries)
	if err != nil {
		serverError(w, r, "failed to import students", err, "class_id", class.ID)
		return
	}
	h.invalidate(r, class.ID)
	slog.Info("imported students", "class_id", class.ID, "source", source, "count", len(students))
	writeJSON(w, http.StatusOK, ImportResponse{
		Message:  appI18n.Tp(r.Context(), "StudentsImported", len(students)),
		Count:    len(students),
		Students: students,
	})
}

func (h *Handler) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	class, ok := h.ownClass(w, r)
	if !ok {
		return
	}
	studentID := chi.URLParam(r, "studentID")
	err := h.store.DeleteStudent(class.ID, studentID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, CodeStudentNotFound, "ErrStudentNotFound")
		return
	}
	if err != nil {
		serverError(w, r, "failed to delete student", err, "class_id", class.ID, "student_id", studentID)
		return
	}
	h.invalidate(r, class.ID)
	writeMessage(w, appI18n.T(r.Context(), "StudentDeleted"))
}

func (h *Handler) handleDeleteAllStudents(w http.ResponseWriter, r *http.Request) {
	class, ok := h.ownClass(w, r)
	if !ok {
		return
	}
	n, err := h.store.DeleteAllStudents(class.ID)
	if err != nil {
		serverError(w, r, "failed to delete students", err, "class_id", class.ID)
		return
	}
	h.invalidate(r, class.ID)
	count := int(n)
	writeJSON(w, http.StatusOK, MessageBody{
		Message: appI18n.Tp(r.Context(), "StudentsDeleted", count),
		Count:   &count,
	})
}
