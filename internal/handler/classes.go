package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/rollcall/internal/i18n"
	"github.com/pavelanni/rollcall/internal/model"
	"github.com/pavelanni/rollcall/internal/store"
)

type createClassRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleListClasses(w http.ResponseWriter, r *http.Request) {
	teacher := model.TeacherFromContext(r.Context())
	classes, err := h.store.ListClasses(teacher.ID)
	if err != nil {
		serverError(w, r, "failed to list classes", err, "teacher_id", teacher.ID)
		return
	}
	if classes == nil {
		classes = []model.Class{}
	}
	writeJSON(w, http.StatusOK, classes)
}

func (h *Handler) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	var req createClassRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "ErrRequiredFields")
		return
	}

	teacher := model.TeacherFromContext(r.Context())
	class, err := h.store.CreateClass(teacher.ID, name)
	if err != nil {
		serverError(w, r, "failed to create class", err, "teacher_id", teacher.ID)
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

func (h *Handler) handleGetClass(w http.ResponseWriter, r *http.Request) {
	state, ok := h.loadState(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, state.Class)
}

func (h *Handler) handleDeleteClass(w http.ResponseWriter, r *http.Request) {
	teacher := model.TeacherFromContext(r.Context())
	classID := chi.URLParam(r, "classID")

	err := h.store.DeleteClass(teacher.ID, classID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, CodeClassNotFound, "ErrClassNotFound")
		return
	}
	if err != nil {
		serverError(w, r, "failed to delete class", err, "class_id", classID)
		return
	}
	h.invalidate(r, classID)
	writeMessage(w, appI18n.T(r.Context(), "ClassDeleted"))
}
