package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/pavelanni/rollcall/internal/model"
)

// CreateAssessment appends an outcome for a student of classID.
func (s *Store) CreateAssessment(teacherID, classID, studentID string, score model.Score) (model.Assessment, error) {
	if !score.Valid() {
		return model.Assessment{}, fmt.Errorf("invalid score %d", score)
	}
	if _, err := s.GetStudent(classID, studentID); err != nil {
		return model.Assessment{}, err
	}
	a := model.Assessment{
		ID:        uuid.NewString(),
		StudentID: studentID,
		ClassID:   classID,
		TeacherID: teacherID,
		Score:     score,
		Date:      now(),
	}
	_, err := s.exec(
		`INSERT INTO assessments (id, student_id, class_id, teacher_id, score, date) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.StudentID, a.ClassID, a.TeacherID, int(a.Score), a.Date,
	)
	if err != nil {
		return model.Assessment{}, fmt.Errorf("insert assessment: %w", err)
	}
	return a, nil
}

// ListAssessments returns a class's assessment log oldest first.
func (s *Store) ListAssessments(classID string) ([]model.Assessment, error) {
	rows, err := s.query(
		`SELECT id, student_id, class_id, teacher_id, score, date
		 FROM assessments WHERE class_id = ? ORDER BY date, id`, classID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	assessments := []model.Assessment{}
	for rows.Next() {
		var a model.Assessment
		if err := rows.Scan(&a.ID, &a.StudentID, &a.ClassID, &a.TeacherID, &a.Score, &a.Date); err != nil {
			return nil, err
		}
		assessments = append(assessments, a)
	}
	return assessments, rows.Err()
}

// ListAssessmentViews returns a class's assessments newest first, each
// joined with the student's name and number.
func (s *Store) ListAssessmentViews(classID string) ([]model.AssessmentView, error) {
	rows, err := s.query(
		`SELECT a.id, a.student_id, a.class_id, a.teacher_id, a.score, a.date, st.name, st.student_number
		 FROM assessments a JOIN students st ON st.id = a.student_id
		 WHERE a.class_id = ? ORDER BY a.date DESC, a.id DESC`, classID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	views := []model.AssessmentView{}
	for rows.Next() {
		var v model.AssessmentView
		var name sql.NullString
		if err := rows.Scan(&v.ID, &v.StudentID, &v.ClassID, &v.TeacherID, &v.Score, &v.Date, &name, &v.StudentNumber); err != nil {
			return nil, err
		}
		v.StudentName = name.String
		views = append(views, v)
	}
	return views, rows.Err()
}
