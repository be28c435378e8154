package handler

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/pavelanni/rollcall/internal/model"
	"github.com/pavelanni/rollcall/internal/picker"
	"github.com/pavelanni/rollcall/internal/report"
	"github.com/pavelanni/rollcall/internal/stats"
	"github.com/pavelanni/rollcall/internal/store"
)

type createAssessmentRequest struct {
	StudentID string `json:"student_id"`
	Score     *int   `json:"score"`
}

func (h *Handler) writePickError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, picker.ErrCycleComplete):
		writeError(w, r, http.StatusNotFound, CodeCycleComplete, "CycleComplete")
	case errors.Is(err, picker.ErrEmptyRoster):
		writeError(w, r, http.StatusNotFound, CodeEmptyRoster, "ErrEmptyRoster")
	default:
		serverError(w, r, "failed to pick student", err)
	}
}

// handleRandomStudent returns a student not yet assessed in the current
// cycle. A 404 with code cycle_complete tells the caller to start a new one.
func (h *Handler) handleRandomStudent(w http.ResponseWriter, r *http.Request) {
	state, ok := h.loadState(w, r)
	if !ok {
		return
	}
	assessed := picker.AssessedSet(state.Assessments, picker.CycleStart(state.Class))
	student, err := h.picker.PickNext(state.Students, assessed)
	if err != nil {
		h.writePickError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// handleStartCycle resets eligibility for the class and returns a draw over
// the whole roster.
func (h *Handler) handleStartCycle(w http.ResponseWriter, r *http.Request) {
	state, ok := h.loadState(w, r)
	if !ok {
		return
	}
	if len(state.Students) == 0 {
		h.writePickError(w, r, picker.ErrEmptyRoster)
		return
	}

	teacher := model.TeacherFromContext(r.Context())
	classID := state.Class.ID
	if _, err := h.store.StartCycle(teacher.ID, classID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, CodeClassNotFound, "ErrClassNotFound")
			return
		}
		serverError(w, r, "failed to start cycle", err, "class_id", classID)
		return
	}
	h.invalidate(r, classID)

	student, err := h.picker.Draw(state.Students)
	if err != nil {
		h.writePickError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

func (h *Handler) handleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	var req createAssessmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Score == nil || !model.Score(*req.Score).Valid() {
		writeError(w, r, http.StatusBadRequest, CodeInvalidScore, "ErrInvalidScore")
		return
	}
	if req.StudentID == "" {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "ErrRequiredFields")
		return
	}

	class, ok := h.ownClass(w, r)
	if !ok {
		return
	}
	teacher := model.TeacherFromContext(r.Context())
	a, err := h.store.CreateAssessment(teacher.ID, class.ID, req.StudentID, model.Score(*req.Score))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, CodeStudentNotFound, "ErrStudentNotFound")
		return
	}
	if err != nil {
		serverError(w, r, "failed to record assessment", err, "class_id", class.ID, "student_id", req.StudentID)
		return
	}
	h.invalidate(r, class.ID)
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	class, ok := h.ownClass(w, r)
	if !ok {
		return
	}
	views, err := h.store.ListAssessmentViews(class.ID)
	if err != nil {
		serverError(w, r, "failed to list assessments", err, "class_id", class.ID)
		return
	}
	if views == nil {
		views = []model.AssessmentView{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	state, ok := h.loadState(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, stats.Of(*state))
}

func (h *Handler) handleReport(format report.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, ok := h.loadState(w, r)
		if !ok {
			return
		}

		rep := stats.Report(*state)
		var buf bytes.Buffer
		if err := report.Write(r.Context(), &buf, format, rep); err != nil {
			serverError(w, r, "failed to write report", err, "class_id", state.Class.ID, "format", format)
			return
		}
		filename := fmt.Sprintf("%s.%s", rep.ClassName, format)
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		if _, err := buf.WriteTo(w); err != nil {
			slog.Warn("report write interrupted", "class_id", state.Class.ID, "error", err)
		}
	}
}
