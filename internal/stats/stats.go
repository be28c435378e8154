// Package stats derives class and student statistics from an assessment log.
package stats

import (
	"sort"

	"github.com/pavelanni/rollcall/internal/model"
)

// Percentage returns 100*correct/(correct+wrong) rounded half up to an
// integer, or 0 when nothing was recorded.
func Percentage(correct, wrong int) int {
	total := correct + wrong
	if total == 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}

type counts struct{ correct, wrong int }

func tally(assessments []model.Assessment) map[string]counts {
	byStudent := make(map[string]counts)
	for _, a := range assessments {
		c := byStudent[a.StudentID]
		switch a.Score {
		case model.ScoreCorrect:
			c.correct++
		case model.ScoreWrong:
			c.wrong++
		}
		byStudent[a.StudentID] = c
	}
	return byStudent
}

// Aggregate computes the statistics snapshot of a class. Assessments whose
// student is not in students are ignored. Inputs are not modified.
func Aggregate(classID string, students []model.Student, assessments []model.Assessment) model.Snapshot {
	byStudent := tally(assessments)

	snap := model.Snapshot{
		ClassID:        classID,
		TotalStudents:  len(students),
		StudentDetails: []model.StudentStats{},
	}
	for _, s := range students {
		c, ok := byStudent[s.ID]
		if !ok || c.correct+c.wrong == 0 {
			continue
		}
		snap.AssessedStudents++
		snap.CorrectAnswers += c.correct
		snap.WrongAnswers += c.wrong
		snap.StudentDetails = append(snap.StudentDetails, model.StudentStats{
			StudentID:         s.ID,
			StudentName:       s.DisplayName(),
			StudentNumber:     s.StudentNumber,
			Correct:           c.correct,
			Wrong:             c.wrong,
			Total:             c.correct + c.wrong,
			CorrectPercentage: Percentage(c.correct, c.wrong),
		})
	}
	snap.TotalAssessments = snap.CorrectAnswers + snap.WrongAnswers

	sort.SliceStable(snap.StudentDetails, func(i, j int) bool {
		a, b := snap.StudentDetails[i], snap.StudentDetails[j]
		if a.StudentNumber != b.StudentNumber {
			return a.StudentNumber < b.StudentNumber
		}
		return a.StudentID < b.StudentID
	})
	return snap
}

// Of aggregates a loaded class.
func Of(state model.ClassState) model.Snapshot {
	return Aggregate(state.Class.ID, state.Students, state.Assessments)
}

// Report builds the export form of a class: the snapshot plus one row per
// roster student in roster order, including students never assessed.
func Report(state model.ClassState) model.ClassReport {
	byStudent := tally(state.Assessments)
	rows := make([]model.ReportRow, 0, len(state.Students))
	for _, s := range state.Students {
		c := byStudent[s.ID]
		rows = append(rows, model.ReportRow{
			StudentNumber:     s.StudentNumber,
			StudentName:       s.DisplayName(),
			Correct:           c.correct,
			Wrong:             c.wrong,
			Total:             c.correct + c.wrong,
			CorrectPercentage: Percentage(c.correct, c.wrong),
		})
	}
	return model.ClassReport{
		ClassName: state.Class.Name,
		Snapshot:  Of(state),
		Rows:      rows,
	}
}
