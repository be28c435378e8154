package model

import (
	"context"
	"time"
)

// Teacher is a registered account that owns classes.
type Teacher struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession is the server-side record behind an issued bearer token.
type AuthSession struct {
	ID        string
	TeacherID string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type teacherCtxKey struct{}

// ContextWithTeacher stores the authenticated teacher in the request context.
func ContextWithTeacher(ctx context.Context, t *Teacher) context.Context {
	return context.WithValue(ctx, teacherCtxKey{}, t)
}

// TeacherFromContext retrieves the authenticated teacher from context, or nil.
func TeacherFromContext(ctx context.Context) *Teacher {
	t, _ := ctx.Value(teacherCtxKey{}).(*Teacher)
	return t
}

type authSessionCtxKey struct{}

// ContextWithAuthSession stores the auth session id of the current request.
func ContextWithAuthSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, authSessionCtxKey{}, id)
}

// AuthSessionFromContext returns the auth session id, or "".
func AuthSessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(authSessionCtxKey{}).(string)
	return id
}

// Class is a teacher's named group of students sharing one assessment history.
type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TeacherID string    `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
	// CycleStartedAt marks the last cycle reset. Nil means the first cycle,
	// which covers every assessment ever recorded.
	CycleStartedAt *time.Time `json:"cycle_started_at,omitempty"`
}

// Student is a roster entry of a class.
type Student struct {
	ID            string    `json:"id"`
	ClassID       string    `json:"class_id"`
	StudentNumber string    `json:"student_number"`
	Name          *string   `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
}

// DisplayName returns the student's name, or "" when none was given.
func (s Student) DisplayName() string {
	if s.Name == nil {
		return ""
	}
	return *s.Name
}

// Score is the recorded outcome of one pick.
type Score int

const (
	ScoreWrong   Score = 0
	ScoreCorrect Score = 1
)

// Valid reports whether s is one of the two recordable outcomes.
func (s Score) Valid() bool {
	return s == ScoreWrong || s == ScoreCorrect
}

// Assessment is one immutable correct/wrong outcome recorded for a student.
type Assessment struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	ClassID   string    `json:"class_id"`
	TeacherID string    `json:"teacher_id"`
	Score     Score     `json:"score"`
	Date      time.Time `json:"date"`
}

// AssessmentView is an assessment enriched with the student's identity.
type AssessmentView struct {
	Assessment
	StudentName   string `json:"student_name"`
	StudentNumber string `json:"student_number"`
}

// RosterEntry is one parsed row of an imported roster.
type RosterEntry struct {
	StudentNumber string  `json:"student_number"`
	Name          *string `json:"name,omitempty"`
}

// ClassState is a class loaded together with its roster and assessment log.
type ClassState struct {
	Class       Class        `json:"class"`
	Students    []Student    `json:"students"`
	Assessments []Assessment `json:"assessments"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	Lang        string        // UI language for error messages (ar, en)
	TokenTTL    time.Duration // Lifetime of issued bearer tokens
	CORSOrigins []string      // Allowed origins for the SPA
}
