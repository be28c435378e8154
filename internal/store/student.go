package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/rollcall/internal/model"
)

const studentColumns = `id, class_id, student_number, name, created_at`

func scanStudent(row interface{ Scan(...any) error }) (model.Student, error) {
	var st model.Student
	var name sql.NullString
	if err := row.Scan(&st.ID, &st.ClassID, &st.StudentNumber, &name, &st.CreatedAt); err != nil {
		return model.Student{}, err
	}
	if name.Valid {
		n := name.String
		st.Name = &n
	}
	return st, nil
}

func nullableName(name *string) any {
	if name == nil || *name == "" {
		return nil
	}
	return *name
}

// CreateStudent adds one student to a class.
func (s *Store) CreateStudent(classID string, entry model.RosterEntry) (model.Student, error) {
	students, err := s.CreateStudents(classID, []model.RosterEntry{entry})
	if err != nil {
		return model.Student{}, err
	}
	return students[0], nil
}

// CreateStudents adds a batch of students in one transaction; either all
// rows are inserted or none. Creation times follow input order so the
// roster lists in file order.
func (s *Store) CreateStudents(classID string, entries []model.RosterEntry) ([]model.Student, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	students, err := s.insertStudents(tx, classID, entries)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	slog.Info("added students", "class_id", classID, "count", len(students))
	return students, nil
}

// ImportStudents adds the students of a roster file and records the file's
// hash in the same transaction.
func (s *Store) ImportStudents(classID, path, hash string, entries []model.RosterEntry) ([]model.Student, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	students, err := s.insertStudents(tx, classID, entries)
	if err != nil {
		return nil, err
	}
	if err := s.setMetadataTx(tx, importKey(classID, path), hash); err != nil {
		return nil, fmt.Errorf("record import: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	slog.Info("imported students", "class_id", classID, "path", path, "count", len(students))
	return students, nil
}

func (s *Store) insertStudents(tx *sql.Tx, classID string, entries []model.RosterEntry) ([]model.Student, error) {
	base := now()
	insert := s.rebind(`INSERT INTO students (id, class_id, student_number, name, created_at) VALUES (?, ?, ?, ?, ?)`)
	students := make([]model.Student, 0, len(entries))
	for i, e := range entries {
		st := model.Student{
			ID:            uuid.NewString(),
			ClassID:       classID,
			StudentNumber: e.StudentNumber,
			CreatedAt:     base.Add(time.Duration(i) * time.Microsecond),
		}
		if e.Name != nil && *e.Name != "" {
			n := *e.Name
			st.Name = &n
		}
		if _, err := tx.Exec(insert, st.ID, st.ClassID, st.StudentNumber, nullableName(st.Name), st.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert student %s: %w", e.StudentNumber, err)
		}
		students = append(students, st)
	}
	return students, nil
}

// ListStudents returns a class's roster in creation order.
func (s *Store) ListStudents(classID string) ([]model.Student, error) {
	rows, err := s.query(
		`SELECT `+studentColumns+` FROM students WHERE class_id = ? ORDER BY created_at, id`, classID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	students := []model.Student{}
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// GetStudent returns a student of the given class, or ErrNotFound.
func (s *Store) GetStudent(classID, studentID string) (model.Student, error) {
	st, err := scanStudent(s.queryRow(
		`SELECT `+studentColumns+` FROM students WHERE id = ? AND class_id = ?`, studentID, classID,
	))
	if err == sql.ErrNoRows {
		return model.Student{}, ErrNotFound
	}
	return st, err
}

// DeleteStudent removes one student and that student's assessments.
func (s *Store) DeleteStudent(classID, studentID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.rebind(`DELETE FROM assessments WHERE student_id = ? AND class_id = ?`), studentID, classID); err != nil {
		return fmt.Errorf("delete assessments: %w", err)
	}
	res, err := tx.Exec(s.rebind(`DELETE FROM students WHERE id = ? AND class_id = ?`), studentID, classID)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// DeleteAllStudents empties a class roster and its assessment history, and
// forgets which roster files were imported into it. It returns the number
// of students removed.
func (s *Store) DeleteAllStudents(classID string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.rebind(`DELETE FROM assessments WHERE class_id = ?`), classID); err != nil {
		return 0, fmt.Errorf("delete assessments: %w", err)
	}
	res, err := tx.Exec(s.rebind(`DELETE FROM students WHERE class_id = ?`), classID)
	if err != nil {
		return 0, fmt.Errorf("delete students: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := s.forgetImports(tx, classID); err != nil {
		return 0, fmt.Errorf("forget roster imports: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	slog.Info("deleted all students", "class_id", classID, "count", n)
	return n, nil
}
