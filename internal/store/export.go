package store

import (
	"fmt"

	"github.com/pavelanni/rollcall/internal/model"
)

// LoadClassState reads a teacher's class together with its roster and
// assessment log.
func (s *Store) LoadClassState(teacherID, classID string) (model.ClassState, error) {
	class, err := s.GetClass(teacherID, classID)
	if err != nil {
		return model.ClassState{}, err
	}
	students, err := s.ListStudents(classID)
	if err != nil {
		return model.ClassState{}, fmt.Errorf("list students: %w", err)
	}
	assessments, err := s.ListAssessments(classID)
	if err != nil {
		return model.ClassState{}, fmt.Errorf("list assessments: %w", err)
	}
	return model.ClassState{
		Class:       class,
		Students:    students,
		Assessments: assessments,
	}, nil
}
