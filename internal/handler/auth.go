package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/rollcall/internal/auth"
	appI18n "github.com/pavelanni/rollcall/internal/i18n"
	"github.com/pavelanni/rollcall/internal/model"
	"github.com/pavelanni/rollcall/internal/store"
)

// TokenResponse is returned by register and token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	TeacherID   string `json:"teacher_id"`
	Name        string `json:"name"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func unauthorized(w http.ResponseWriter, r *http.Request, code, msgID string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, r, http.StatusUnauthorized, code, msgID)
}

// requireAuth is middleware that checks for a valid bearer token backed by
// a live auth session.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			unauthorized(w, r, CodeUnauthorized, "ErrUnauthorized")
			return
		}

		claims, err := h.issuer.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			slog.Debug("rejected bearer token", "error", err)
			unauthorized(w, r, CodeUnauthorized, "ErrUnauthorized")
			return
		}

		authSess, err := h.store.GetAuthSession(claims.SessionID())
		if err != nil {
			serverError(w, r, "failed to get auth session", err)
			return
		}
		if authSess == nil || authSess.TeacherID != claims.TeacherID() {
			unauthorized(w, r, CodeUnauthorized, "ErrUnauthorized")
			return
		}

		teacher, err := h.store.GetTeacherByID(authSess.TeacherID)
		if err != nil {
			serverError(w, r, "failed to get teacher", err)
			return
		}
		if teacher == nil {
			unauthorized(w, r, CodeUnauthorized, "ErrUnauthorized")
			return
		}

		ctx := model.ContextWithTeacher(r.Context(), teacher)
		ctx = model.ContextWithAuthSession(ctx, authSess.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request, status int, teacher *model.Teacher) {
	authSess, err := h.store.CreateAuthSession(teacher.ID, h.config.TokenTTL)
	if err != nil {
		serverError(w, r, "failed to create auth session", err, "teacher_id", teacher.ID)
		return
	}
	token, err := h.issuer.Issue(teacher.ID, authSess.ID, authSess.CreatedAt, authSess.ExpiresAt)
	if err != nil {
		serverError(w, r, "failed to sign token", err, "teacher_id", teacher.ID)
		return
	}
	writeJSON(w, status, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		TeacherID:   teacher.ID,
		Name:        teacher.Name,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "ErrRequiredFields")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		serverError(w, r, "failed to hash password", err)
		return
	}

	teacher, err := h.store.CreateTeacher(model.Teacher{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if errors.Is(err, store.ErrDuplicateEmail) {
		writeError(w, r, http.StatusBadRequest, CodeEmailRegistered, "ErrEmailRegistered")
		return
	}
	if err != nil {
		serverError(w, r, "failed to create teacher", err)
		return
	}

	h.issueToken(w, r, http.StatusOK, &teacher)
}

// handleToken accepts the OAuth2 password form: username holds the email.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		unauthorized(w, r, CodeBadCredentials, "ErrBadCredentials")
		return
	}

	teacher, err := h.store.GetTeacherByEmail(email)
	if err != nil {
		serverError(w, r, "failed to get teacher", err)
		return
	}
	if teacher == nil || !auth.CheckPassword(teacher.PasswordHash, password) {
		unauthorized(w, r, CodeBadCredentials, "ErrBadCredentials")
		return
	}

	h.issueToken(w, r, http.StatusOK, teacher)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAuthSession(model.AuthSessionFromContext(r.Context())); err != nil {
		serverError(w, r, "failed to delete auth session", err)
		return
	}
	writeMessage(w, appI18n.T(r.Context(), "LoggedOut"))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.TeacherFromContext(r.Context()))
}
