// Package picker chooses the next student to question so that everyone in
// a class is assessed once before anyone is asked again.
package picker

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/pavelanni/rollcall/internal/model"
)

var (
	// ErrCycleComplete means every student has been assessed in the current cycle.
	ErrCycleComplete = errors.New("every student has been assessed in this cycle")
	// ErrEmptyRoster means the class has no students to pick from.
	ErrEmptyRoster = errors.New("class has no students")
)

// Picker draws students using its random source. The zero value is not
// usable; call New or use the package-level functions.
type Picker struct {
	intN func(n int) int
}

// New returns a Picker backed by src. A nil src uses the global generator.
func New(src rand.Source) *Picker {
	if src == nil {
		return &Picker{intN: rand.IntN}
	}
	r := rand.New(src)
	return &Picker{intN: r.IntN}
}

var global = New(nil)

// PickNext returns a random student among those not in assessed.
func PickNext(students []model.Student, assessed map[string]bool) (model.Student, error) {
	return global.PickNext(students, assessed)
}

// Draw returns a random student from the whole roster.
func Draw(students []model.Student) (model.Student, error) {
	return global.Draw(students)
}

// PickNext returns a random student among those not in assessed. It returns
// ErrEmptyRoster when students is empty and ErrCycleComplete when every
// student is in assessed.
func (p *Picker) PickNext(students []model.Student, assessed map[string]bool) (model.Student, error) {
	if len(students) == 0 {
		return model.Student{}, ErrEmptyRoster
	}
	var eligible []model.Student
	for _, s := range students {
		if !assessed[s.ID] {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 {
		return model.Student{}, ErrCycleComplete
	}
	return eligible[p.intN(len(eligible))], nil
}

// Draw picks uniformly from the whole roster, ignoring assessment history.
// It is the restart draw that opens a new cycle, so it may return the
// student that was asked last.
func (p *Picker) Draw(students []model.Student) (model.Student, error) {
	if len(students) == 0 {
		return model.Student{}, ErrEmptyRoster
	}
	return students[p.intN(len(students))], nil
}

// AssessedSet returns the ids of students with at least one assessment dated
// at or after since. A zero since counts every assessment.
func AssessedSet(assessments []model.Assessment, since time.Time) map[string]bool {
	set := make(map[string]bool, len(assessments))
	for _, a := range assessments {
		if !since.IsZero() && a.Date.Before(since) {
			continue
		}
		set[a.StudentID] = true
	}
	return set
}

// CycleStart returns the start of the class's current cycle, or the zero
// time for a class that was never reset.
func CycleStart(c model.Class) time.Time {
	if c.CycleStartedAt == nil {
		return time.Time{}
	}
	return *c.CycleStartedAt
}

// Next picks the next student of a loaded class.
func Next(state model.ClassState) (model.Student, error) {
	return PickNext(state.Students, AssessedSet(state.Assessments, CycleStart(state.Class)))
}
