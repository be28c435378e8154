package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/rollcall/internal/model"
)

// CreateTeacher inserts a new teacher. Email is stored lowercased.
func (s *Store) CreateTeacher(t model.Teacher) (model.Teacher, error) {
	t.Email = strings.ToLower(strings.TrimSpace(t.Email))
	existing, err := s.GetTeacherByEmail(t.Email)
	if err != nil {
		return model.Teacher{}, err
	}
	if existing != nil {
		return model.Teacher{}, ErrDuplicateEmail
	}

	t.ID = uuid.NewString()
	t.CreatedAt = now()
	_, err = s.exec(
		`INSERT INTO teachers (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Email, t.PasswordHash, t.CreatedAt,
	)
	if err != nil {
		slog.Error("failed to create teacher", "email", t.Email, "error", err)
		return model.Teacher{}, fmt.Errorf("insert teacher: %w", err)
	}
	slog.Info("created teacher", "id", t.ID, "email", t.Email)
	return t, nil
}

// GetTeacherByEmail returns a teacher by email, or nil if none exists.
func (s *Store) GetTeacherByEmail(email string) (*model.Teacher, error) {
	var t model.Teacher
	err := s.queryRow(
		`SELECT id, name, email, password_hash, created_at FROM teachers WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&t.ID, &t.Name, &t.Email, &t.PasswordHash, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTeacherByID returns a teacher by ID, or nil if none exists.
func (s *Store) GetTeacherByID(id string) (*model.Teacher, error) {
	var t model.Teacher
	err := s.queryRow(
		`SELECT id, name, email, password_hash, created_at FROM teachers WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Email, &t.PasswordHash, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TeacherCount returns the total number of registered teachers.
func (s *Store) TeacherCount() (int, error) {
	var count int
	err := s.queryRow(`SELECT COUNT(*) FROM teachers`).Scan(&count)
	return count, err
}
