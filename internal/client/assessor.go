package client

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pavelanni/rollcall/internal/model"
)

// ErrNoCurrentStudent is returned by Mark before a student was picked.
var ErrNoCurrentStudent = errors.New("no student picked")

// Assessor runs the pick, mark or skip loop for one class.
type Assessor struct {
	client  *Client
	classID string
	view    *ClassView

	// OnCycleComplete runs when every student was assessed, before the
	// next cycle starts.
	OnCycleComplete func()

	current *model.Student
}

// NewAssessor creates an assessor for classID. view may be nil; when set it
// is invalidated after every recorded score and new cycle.
func NewAssessor(c *Client, classID string, view *ClassView) *Assessor {
	return &Assessor{client: c, classID: classID, view: view}
}

// Current returns the student being assessed, or nil.
func (a *Assessor) Current() *model.Student {
	return a.current
}

// Next picks the next student. When the cycle is complete it reports that
// through OnCycleComplete and starts a new cycle with a draw over the
// whole roster. An empty roster returns ErrEmptyRoster without a restart.
func (a *Assessor) Next(ctx context.Context) (model.Student, error) {
	st, err := a.client.RandomStudent(ctx, a.classID)
	if errors.Is(err, ErrCycleComplete) {
		slog.Info("assessment cycle complete", "class_id", a.classID)
		if a.OnCycleComplete != nil {
			a.OnCycleComplete()
		}
		st, err = a.client.StartCycle(ctx, a.classID)
		a.invalidate()
	}
	if err != nil {
		a.current = nil
		return model.Student{}, err
	}
	a.current = &st
	return st, nil
}

// Skip moves on to another student without recording anything.
func (a *Assessor) Skip(ctx context.Context) (model.Student, error) {
	return a.Next(ctx)
}

// Mark records the outcome for the current student. The current student is
// kept when recording fails so the teacher can retry.
func (a *Assessor) Mark(ctx context.Context, correct bool) (model.Assessment, error) {
	if a.current == nil {
		return model.Assessment{}, ErrNoCurrentStudent
	}
	score := model.ScoreWrong
	if correct {
		score = model.ScoreCorrect
	}
	rec, err := a.client.RecordAssessment(ctx, a.classID, a.current.ID, score)
	if err != nil {
		return model.Assessment{}, err
	}
	a.current = nil
	a.invalidate()
	return rec, nil
}

func (a *Assessor) invalidate() {
	if a.view != nil {
		a.view.Invalidate()
	}
}
