package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/pavelanni/rollcall/internal/model"
	"github.com/pavelanni/rollcall/internal/report"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	TeacherID   string `json:"teacher_id"`
	Name        string `json:"name"`
}

// Message is the reply of operations that only report an outcome.
type Message struct {
	Message string `json:"message"`
	Count   *int   `json:"count,omitempty"`
}

// ImportResult reports the students added by an import.
type ImportResult struct {
	Message  string          `json:"message"`
	Count    int             `json:"count"`
	Students []model.Student `json:"students"`
}

func required(fields ...[2]string) error {
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			return &ValidationError{Field: f[0]}
		}
	}
	return nil
}

func classPath(classID string, parts ...string) string {
	p := "/classes/" + url.PathEscape(classID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (c *Client) startSession(tok tokenResponse) *Session {
	s := &Session{Token: tok.AccessToken, TeacherID: tok.TeacherID, Name: tok.Name}
	c.setSession(s)
	return s
}

// Register creates a teacher account and starts a session for it.
func (c *Client) Register(ctx context.Context, name, email, password string) (*Session, error) {
	if err := required([2]string{"name", name}, [2]string{"email", email}, [2]string{"password", password}); err != nil {
		return nil, err
	}
	r, err := jsonRequest(http.MethodPost, "/register", map[string]string{"name": name, "email": email, "password": password})
	if err != nil {
		return nil, err
	}
	r.public = true
	var tok tokenResponse
	if err := c.do(ctx, r, &tok); err != nil {
		return nil, err
	}
	return c.startSession(tok), nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	if err := required([2]string{"email", email}, [2]string{"password", password}); err != nil {
		return nil, err
	}
	form := url.Values{"username": {email}, "password": {password}}
	var tok tokenResponse
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/token",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		public:      true,
	}, &tok)
	if err != nil {
		return nil, err
	}
	return c.startSession(tok), nil
}

// Logout ends the session on the server. The local session is cleared even
// when the request fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.setSession(nil)
	return c.call(ctx, http.MethodPost, "/logout", nil, nil)
}

// Me returns the logged-in teacher.
func (c *Client) Me(ctx context.Context) (model.Teacher, error) {
	var t model.Teacher
	err := c.call(ctx, http.MethodGet, "/me", nil, &t)
	return t, err
}

// ListClasses returns the teacher's classes in creation order.
func (c *Client) ListClasses(ctx context.Context) ([]model.Class, error) {
	var classes []model.Class
	err := c.call(ctx, http.MethodGet, "/classes", nil, &classes)
	return classes, err
}

// CreateClass adds a class.
func (c *Client) CreateClass(ctx context.Context, name string) (model.Class, error) {
	if err := required([2]string{"name", name}); err != nil {
		return model.Class{}, err
	}
	var class model.Class
	err := c.call(ctx, http.MethodPost, "/classes", map[string]string{"name": name}, &class)
	return class, err
}

// GetClass returns one class.
func (c *Client) GetClass(ctx context.Context, classID string) (model.Class, error) {
	var class model.Class
	err := c.call(ctx, http.MethodGet, classPath(classID), nil, &class)
	return class, err
}

// DeleteClass removes a class with its students and assessments.
func (c *Client) DeleteClass(ctx context.Context, classID string, confirm Confirm) error {
	if !confirm {
		return ErrNotConfirmed
	}
	return c.call(ctx, http.MethodDelete, classPath(classID), nil, nil)
}

// ListStudents returns a class roster in creation order.
func (c *Client) ListStudents(ctx context.Context, classID string) ([]model.Student, error) {
	var students []model.Student
	err := c.call(ctx, http.MethodGet, classPath(classID, "students"), nil, &students)
	return students, err
}

// AddStudent adds one student. An empty name is sent as null.
func (c *Client) AddStudent(ctx context.Context, classID, studentNumber, name string) (model.Student, error) {
	if err := required([2]string{"student_number", studentNumber}); err != nil {
		return model.Student{}, err
	}
	in := model.RosterEntry{StudentNumber: studentNumber}
	if name != "" {
		in.Name = &name
	}
	var st model.Student
	err := c.call(ctx, http.MethodPost, classPath(classID, "students"), in, &st)
	return st, err
}

// ImportStudents uploads CSV roster text.
func (c *Client) ImportStudents(ctx context.Context, classID, content string) (ImportResult, error) {
	if err := required([2]string{"content", content}); err != nil {
		return ImportResult{}, err
	}
	var res ImportResult
	err := c.call(ctx, http.MethodPost, classPath(classID, "students", "upload"), map[string]string{"content": content}, &res)
	return res, err
}

// ImportFile uploads a CSV or XLSX roster file.
func (c *Client) ImportFile(ctx context.Context, classID, filename string, r io.Reader) (ImportResult, error) {
	if err := required([2]string{"file", filename}); err != nil {
		return ImportResult{}, err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return ImportResult{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return ImportResult{}, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return ImportResult{}, err
	}
	var res ImportResult
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        classPath(classID, "students", "upload"),
		body:        &body,
		contentType: mw.FormDataContentType(),
	}, &res)
	return res, err
}

// DeleteStudent removes one student and their assessments.
func (c *Client) DeleteStudent(ctx context.Context, classID, studentID string) error {
	return c.call(ctx, http.MethodDelete, classPath(classID, "students", url.PathEscape(studentID)), nil, nil)
}

// DeleteAllStudents empties a class roster. It returns the number removed.
func (c *Client) DeleteAllStudents(ctx context.Context, classID string, confirm Confirm) (int, error) {
	if !confirm {
		return 0, ErrNotConfirmed
	}
	var msg Message
	if err := c.call(ctx, http.MethodDelete, classPath(classID, "students"), nil, &msg); err != nil {
		return 0, err
	}
	if msg.Count == nil {
		return 0, nil
	}
	return *msg.Count, nil
}

// RandomStudent picks a student not yet assessed in the current cycle. It
// returns ErrCycleComplete or ErrEmptyRoster when nobody is eligible.
func (c *Client) RandomStudent(ctx context.Context, classID string) (model.Student, error) {
	var st model.Student
	err := c.call(ctx, http.MethodGet, classPath(classID, "random-student"), nil, &st)
	return st, err
}

// StartCycle makes every student eligible again and returns a student drawn
// from the whole roster.
func (c *Client) StartCycle(ctx context.Context, classID string) (model.Student, error) {
	var st model.Student
	err := c.call(ctx, http.MethodPost, classPath(classID, "cycle"), nil, &st)
	return st, err
}

// RecordAssessment stores a score for a student.
func (c *Client) RecordAssessment(ctx context.Context, classID, studentID string, score model.Score) (model.Assessment, error) {
	if err := required([2]string{"student_id", studentID}); err != nil {
		return model.Assessment{}, err
	}
	var a model.Assessment
	in := map[string]any{"student_id": studentID, "score": int(score)}
	err := c.call(ctx, http.MethodPost, classPath(classID, "assessments"), in, &a)
	return a, err
}

// ListAssessments returns the class history, newest first.
func (c *Client) ListAssessments(ctx context.Context, classID string) ([]model.AssessmentView, error) {
	var views []model.AssessmentView
	err := c.call(ctx, http.MethodGet, classPath(classID, "assessments"), nil, &views)
	return views, err
}

// Statistics returns the class snapshot.
func (c *Client) Statistics(ctx context.Context, classID string) (model.Snapshot, error) {
	var snap model.Snapshot
	err := c.call(ctx, http.MethodGet, classPath(classID, "statistics"), nil, &snap)
	return snap, err
}

// DownloadReport copies the class report in format f to w.
func (c *Client) DownloadReport(ctx context.Context, classID string, f report.Format, w io.Writer) error {
	resp, err := c.send(ctx, request{method: http.MethodGet, path: classPath(classID, "report."+string(f))})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download report: %w", err)
	}
	return nil
}
