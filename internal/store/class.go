package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/rollcall/internal/model"
)

const classColumns = `id, name, teacher_id, created_at, cycle_started_at`

func scanClass(row interface{ Scan(...any) error }) (model.Class, error) {
	var c model.Class
	var cycle sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &c.TeacherID, &c.CreatedAt, &cycle); err != nil {
		return model.Class{}, err
	}
	if cycle.Valid {
		t := cycle.Time
		c.CycleStartedAt = &t
	}
	return c, nil
}

// CreateClass creates a class owned by teacherID.
func (s *Store) CreateClass(teacherID, name string) (model.Class, error) {
	c := model.Class{
		ID:        uuid.NewString(),
		Name:      name,
		TeacherID: teacherID,
		CreatedAt: now(),
	}
	_, err := s.exec(
		`INSERT INTO classes (id, name, teacher_id, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.TeacherID, c.CreatedAt,
	)
	if err != nil {
		return model.Class{}, fmt.Errorf("insert class: %w", err)
	}
	slog.Info("created class", "id", c.ID, "teacher_id", teacherID)
	return c, nil
}

// ListClasses returns a teacher's classes in creation order.
func (s *Store) ListClasses(teacherID string) ([]model.Class, error) {
	rows, err := s.query(
		`SELECT `+classColumns+` FROM classes WHERE teacher_id = ? ORDER BY created_at, id`, teacherID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	classes := []model.Class{}
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// GetClass returns a class owned by teacherID, or ErrNotFound.
func (s *Store) GetClass(teacherID, classID string) (model.Class, error) {
	c, err := scanClass(s.queryRow(
		`SELECT `+classColumns+` FROM classes WHERE id = ? AND teacher_id = ?`, classID, teacherID,
	))
	if err == sql.ErrNoRows {
		return model.Class{}, ErrNotFound
	}
	return c, err
}

// DeleteClass removes a class with its students and assessments.
func (s *Store) DeleteClass(teacherID, classID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(s.rebind(`DELETE FROM assessments WHERE class_id IN (SELECT id FROM classes WHERE id = ? AND teacher_id = ?)`), classID, teacherID)
	if err != nil {
		return fmt.Errorf("delete assessments: %w", err)
	}
	assessments, _ := res.RowsAffected()
	res, err = tx.Exec(s.rebind(`DELETE FROM students WHERE class_id IN (SELECT id FROM classes WHERE id = ? AND teacher_id = ?)`), classID, teacherID)
	if err != nil {
		return fmt.Errorf("delete students: %w", err)
	}
	students, _ := res.RowsAffected()
	res, err = tx.Exec(s.rebind(`DELETE FROM classes WHERE id = ? AND teacher_id = ?`), classID, teacherID)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := s.forgetImports(tx, classID); err != nil {
		return fmt.Errorf("forget roster imports: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("deleted class", "id", classID, "students", students, "assessments", assessments)
	return nil
}

// StartCycle marks the beginning of a new assessment cycle for a class.
// Assessments recorded before the returned time no longer count toward
// the current cycle.
func (s *Store) StartCycle(teacherID, classID string) (time.Time, error) {
	t := now()
	res, err := s.exec(
		`UPDATE classes SET cycle_started_at = ? WHERE id = ? AND teacher_id = ?`, t, classID, teacherID,
	)
	if err != nil {
		return time.Time{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return time.Time{}, ErrNotFound
	}
	slog.Info("started assessment cycle", "class_id", classID, "at", t)
	return t, nil
}
