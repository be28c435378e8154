package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/rollcall/internal/auth"
	"github.com/pavelanni/rollcall/internal/cache"
	appI18n "github.com/pavelanni/rollcall/internal/i18n"
	"github.com/pavelanni/rollcall/internal/model"
	"github.com/pavelanni/rollcall/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	_, srv := newTestHandler(t)
	return srv
}

func newTestHandler(t *testing.T) (*Handler, *httptest.Server) {
	t.Helper()
	if err := appI18n.Init("ar"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	iss, err := auth.NewIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	h, err := New(s, cache.NewMemory(0), iss, model.ServerConfig{Lang: "ar"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("ar"))
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return send(t, req)
}

func send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func expectError(t *testing.T, resp *http.Response, data []byte, status int, code string) ErrorBody {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, status, data)
	}
	body := decode[ErrorBody](t, data)
	if body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
	if body.Detail == "" {
		t.Error("expected a localized detail message")
	}
	return body
}

func register(t *testing.T, srv *httptest.Server, email string) string {
	t.Helper()
	resp, data := doJSON(t, srv, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Teacher " + email, "email": email, "password": "pw",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: status %d body %s", resp.StatusCode, data)
	}
	return decode[TokenResponse](t, data).AccessToken
}

func createClass(t *testing.T, srv *httptest.Server, token, name string) model.Class {
	t.Helper()
	resp, data := doJSON(t, srv, http.MethodPost, "/api/classes", token, map[string]string{"name": name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create class: status %d body %s", resp.StatusCode, data)
	}
	return decode[model.Class](t, data)
}

func addStudent(t *testing.T, srv *httptest.Server, token, classID, number string) model.Student {
	t.Helper()
	resp, data := doJSON(t, srv, http.MethodPost, "/api/classes/"+classID+"/students", token,
		map[string]string{"student_number": number, "name": "Student " + number})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add student: status %d body %s", resp.StatusCode, data)
	}
	return decode[model.Student](t, data)
}

func assess(t *testing.T, srv *httptest.Server, token, classID, studentID string, score int) {
	t.Helper()
	resp, data := doJSON(t, srv, http.MethodPost, "/api/classes/"+classID+"/assessments", token,
		map[string]any{"student_id": studentID, "score": score})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("assess: status %d body %s", resp.StatusCode, data)
	}
}

func TestRegisterAndToken(t *testing.T) {
	srv := newTestServer(t)

	resp, data := doJSON(t, srv, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Huda", "email": "Huda@School.org", "password": "s3cret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: status %d body %s", resp.StatusCode, data)
	}
	tok := decode[TokenResponse](t, data)
	if tok.TokenType != "bearer" || tok.AccessToken == "" || tok.Name != "Huda" {
		t.Errorf("unexpected token response %+v", tok)
	}

	resp, data = doJSON(t, srv, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Other", "email": "huda@school.org", "password": "x",
	})
	body := expectError(t, resp, data, http.StatusBadRequest, CodeEmailRegistered)
	if body.Detail != "البريد الإلكتروني مسجل بالفعل" {
		t.Errorf("detail = %q", body.Detail)
	}

	resp, data = doJSON(t, srv, http.MethodPost, "/api/register", "", map[string]string{"name": "", "email": "a@b.c", "password": "x"})
	expectError(t, resp, data, http.StatusBadRequest, CodeValidation)

	login := func(password string) (*http.Response, []byte) {
		form := url.Values{"username": {"huda@school.org"}, "password": {password}}
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/token", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return send(t, req)
	}

	resp, data = login("wrong")
	expectError(t, resp, data, http.StatusUnauthorized, CodeBadCredentials)
	if resp.Header.Get("WWW-Authenticate") != "Bearer" {
		t.Error("expected WWW-Authenticate header on 401")
	}

	resp, data = login("s3cret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token: status %d body %s", resp.StatusCode, data)
	}
	token := decode[TokenResponse](t, data).AccessToken

	resp, data = doJSON(t, srv, http.MethodGet, "/api/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d", resp.StatusCode)
	}
	me := decode[model.Teacher](t, data)
	if me.Email != "huda@school.org" || me.ID != tok.TeacherID {
		t.Errorf("unexpected profile %+v", me)
	}
	if strings.Contains(string(data), "password") {
		t.Error("profile must not expose the password hash")
	}
}

func TestRequireAuth(t *testing.T) {
	srv := newTestServer(t)
	token := register(t, srv, "a@school.org")

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := doJSON(t, srv, http.MethodGet, "/api/classes", tt.token, nil)
			expectError(t, resp, data, http.StatusUnauthorized, CodeUnauthorized)
		})
	}

	resp, _ := doJSON(t, srv, http.MethodGet, "/api/classes", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, srv, http.MethodPost, "/api/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp, data := doJSON(t, srv, http.MethodGet, "/api/classes", token, nil)
	expectError(t, resp, data, http.StatusUnauthorized, CodeUnauthorized)
}

func TestClassesAreScopedToTeacher(t *testing.T) {
	srv := newTestServer(t)
	alice := register(t, srv, "alice@school.org")
	bob := register(t, srv, "bob@school.org")

	class := createClass(t, srv, alice, "5A")
	addStudent(t, srv, alice, class.ID, "1")

	// Warm the cache with alice's view of the class.
	resp, _ := doJSON(t, srv, http.MethodGet, "/api/classes/"+class.ID+"/students", alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list students: status %d", resp.StatusCode)
	}

	for _, path := range []string{"", "/students", "/statistics", "/random-student", "/assessments", "/report.csv"} {
		resp, data := doJSON(t, srv, http.MethodGet, "/api/classes/"+class.ID+path, bob, nil)
		expectError(t, resp, data, http.StatusNotFound, CodeClassNotFound)
	}
	resp, data := doJSON(t, srv, http.MethodDelete, "/api/classes/"+class.ID, bob, nil)
	expectError(t, resp, data, http.StatusNotFound, CodeClassNotFound)

	resp, data = doJSON(t, srv, http.MethodGet, "/api/classes", bob, nil)
	if got := decode[[]model.Class](t, data); len(got) != 0 {
		t.Errorf("bob should see no classes, got %d", len(got))
	}
	resp, data = doJSON(t, srv, http.MethodGet, "/api/classes", alice, nil)
	if got := decode[[]model.Class](t, data); len(got) != 1 || got[0].Name != "5A" {
		t.Errorf("alice classes = %+v", got)
	}
}

func TestAssessmentCycle(t *testing.T) {
	srv := newTestServer(t)
	token := register(t, srv, "t@school.org")
	class := createClass(t, srv, token, "4B")
	base := "/api/classes/" + class.ID
	s1 := addStudent(t, srv, token, class.ID, "1")
	s2 := addStudent(t, srv, token, class.ID, "2")

	assessed := map[string]bool{}
	for i, score := range []int{1, 0} {
		resp, data := doJSON(t, srv, http.MethodGet, base+"/random-student", token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("pick %d: status %d body %s", i, resp.StatusCode, data)
		}
		picked := decode[model.Student](t, data)
		if assessed[picked.ID] {
			t.Fatalf("picked already assessed student %s", picked.ID)
		}
		assessed[picked.ID] = true
		assess(t, srv, token, class.ID, picked.ID, score)
	}
	if !assessed[s1.ID] || !assessed[s2.ID] {
		t.Fatalf("expected both students assessed, got %v", assessed)
	}

	resp, data := doJSON(t, srv, http.MethodGet, base+"/random-student", token, nil)
	body := expectError(t, resp, data, http.StatusNotFound, CodeCycleComplete)
	if body.Detail != "تم تقييم جميع الطلاب" {
		t.Errorf("cycle complete detail = %q", body.Detail)
	}

	resp, data = doJSON(t, srv, http.MethodGet, base+"/statistics", token, nil)
	snap := decode[model.Snapshot](t, data)
	if snap.TotalStudents != 2 || snap.AssessedStudents != 2 || snap.CorrectAnswers != 1 || snap.WrongAnswers != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	resp, data = doJSON(t, srv, http.MethodPost, base+"/cycle", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start cycle: status %d body %s", resp.StatusCode, data)
	}
	restart := decode[model.Student](t, data)
	if restart.ID != s1.ID && restart.ID != s2.ID {
		t.Errorf("restart draw returned unknown student %+v", restart)
	}

	resp, data = doJSON(t, srv, http.MethodGet, base+"/random-student", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pick after new cycle: status %d body %s", resp.StatusCode, data)
	}

	// The history survives the new cycle.
	resp, data = doJSON(t, srv, http.MethodGet, base+"/statistics", token, nil)
	if snap := decode[model.Snapshot](t, data); snap.TotalAssessments != 2 {
		t.Errorf("total assessments after restart = %d, want 2", snap.TotalAssessments)
	}

	resp, data = doJSON(t, srv, http.MethodGet, base+"/assessments", token, nil)
	views := decode[[]model.AssessmentView](t, data)
	if len(views) != 2 || views[0].StudentNumber == "" {
		t.Errorf("unexpected assessment views %+v", views)
	}
}

func TestEmptyRoster(t *testing.T) {
	srv := newTestServer(t)
	token := register(t, srv, "t@school.org")
	class := createClass(t, srv, token, "Empty")
	base := "/api/classes/" + class.ID

	resp, data := doJSON(t, srv, http.MethodGet, base+"/random-student", token, nil)
	expectError(t, resp, data, http.StatusNotFound, CodeEmptyRoster)

	resp, data = doJSON(t, srv, http.MethodPost, base+"/cycle", token, nil)
	expectError(t, resp, data, http.StatusNotFound, CodeEmptyRoster)

	resp, data = doJSON(t, srv, http.MethodGet, base+"/statistics", token, nil)
	snap := decode[model.Snapshot](t, data)
	if snap.TotalStudents != 0 || snap.StudentDetails == nil {
		t.Errorf("unexpected snapshot %+v (details must be an empty list)", snap)
	}
}

func TestCreateAssessmentValidation(t *testing.T) {
	srv := newTestServer(t)
	token := register(t, srv, "t@school.org")
	class := createClass(t, srv, token, "4B")
	other := createClass(t, srv, token, "4C")
	st := addStudent(t, srv, token, class.ID, "1")
	path := "/api/classes/" + class.ID + "/assessments"

	resp, data := doJSON(t, srv, http.MethodPost, path, token, map[string]any{"student_id": st.ID, "score": 2})
	expectError(t, resp, data, http.StatusBadRequest, CodeInvalidScore)

	resp, data = doJSON(t, srv, http.MethodPost, path, token, map[string]any{"student_id": st.ID})
	expectError(t, resp, data, http.StatusBadRequest, CodeInvalidScore)

	resp, data = doJSON(t, srv, http.MethodPost, path, token, map[string]any{"student_id": "nope", "score": 1})
	expectError(t, resp, data, http.StatusNotFound, CodeStudentNotFound)

	// A student of another class is not found through this class.
	resp, data = doJSON(t, srv, http.MethodPost, "/api/classes/"+other.ID+"/assessments", token,
		map[string]any{"student_id": st.ID, "score": 1})
	expectError(t, resp, data, http.StatusNotFound, CodeStudentNotFound)

	resp, data = doJSON(t, srv, http.MethodPost, "/api/classes/"+class.ID+"/students", token, map[string]string{"student_number": "  "})
	expectError(t, resp, data, http.StatusBadRequest, CodeValidation)
}

func TestStatisticsFollowMutations(t *testing.T) {
	srv := newTestServer(t)
	token := register(t, srv, "t@school.org")
	class := createClass(t, srv, token, "4B")
	base := "/api/classes/" + class.ID
	st := addStudent(t, srv, token, class.ID, "1")

	stats := func() model.Snapshot {
		_, data := doJSON(t, srv, http.MethodGet, base+"/statistics", token, nil)
		return decode[model.Snapshot](t, data)
	}

	if got := stats(); got.TotalStudents != 1 || got.TotalAssessments != 0 {
		t.Fatalf("initial snapshot %+v", got)
	}
	assess(t, srv, token, class.ID, st.ID, 1)
	if got := stats(); got.CorrectAnswers != 1 || len(got.StudentDetails) != 1 || got.StudentDetails[0].CorrectPercentage != 100 {
		t.Errorf("snapshot after assessment %+v", got)
	}
	addStudent(t, srv, token, class.ID, "2")
	if got := stats(); got.TotalStudents != 2 || got.AssessedStudents != 1 {
		t.Errorf("snapshot after adding student %+v", got)
	}

	resp, data := doJSON(t, srv, http.MethodDelete, base+"/students/"+st.ID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete student: status %d body %s", resp.StatusCode, data)
	}
	if got := stats(); got.TotalStudents != 1 || got.TotalAssessments != 0 {
		t.Errorf("snapshot after deleting student %+v", got)
	}

	resp, data = doJSON(t, srv, http.MethodDelete, base+"/students/"+st.ID, token, nil)
	expectError(t, resp, data, http.StatusNotFound, CodeStudentNotFound)

	resp, data = doJSON(t, srv, http.MethodDelete, base+"/students", token, nil)
	if body := decode[MessageBody](t, data); body.Count == nil || *body.Count != 1 {
		t.Errorf("delete all response %s", data)
	}
	if got := stats(); got.TotalStudents != 0 {
		t.Errorf("snapshot after deleting all %+v", got)
	}

	resp, _ = doJSON(t, srv, http.MethodDelete, base, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete class: status %d", resp.StatusCode)
	}
	resp, data = doJSON(t, srv, http.MethodGet, base+"/statistics", token, nil)
	expectError(t, resp, data, http.StatusNotFound, CodeClassNotFound)
}

func TestUploadStudents(t *testing.T) {
	srv := newTestServer(t)
	token := register(t, srv, "t@school.org")
	class := createClass(t, srv, token, "4B")
	path := "/api/classes/" + class.ID + "/students/upload"

	resp, data := doJSON(t, srv, http.MethodPost, path, token, map[string]string{
		"content": "student_number,name\n3,Sara\n1,\n2,Omar\n",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: status %d body %s", resp.StatusCode, data)
	}
	imp := decode[ImportResponse](t, data)
	if imp.Count != 3 || imp.Message != "تم استيراد 3 طلاب بنجاح" {
		t.Errorf("unexpected import response %+v", imp)
	}

	resp, data = doJSON(t, srv, http.MethodGet, "/api/classes/"+class.ID+"/students", token, nil)
	students := decode[[]model.Student](t, data)
	var numbers []string
	for _, s := range students {
		numbers = append(numbers, s.StudentNumber)
	}
	if strings.Join(numbers, ",") != "3,1,2" {
		t.Errorf("roster order = %v, want file order", numbers)
	}
	if students[1].Name != nil {
		t.Errorf("blank name should be null, got %q", *students[1].Name)
	}

	tests := []struct {
		name    string
		content string
	}{
		{"duplicate", "student_number\n7\n7\n"},
		{"missing column", "name\nSara\n"},
		{"empty number", "student_number,name\n,Sara\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := doJSON(t, srv, http.MethodPost, path, token, map[string]string{"content": tt.content})
			expectError(t, resp, data, http.StatusBadRequest, CodeImportFailed)
		})
	}

	resp, data = doJSON(t, srv, http.MethodGet, "/api/classes/"+class.ID+"/students", token, nil)
	if got := decode[[]model.Student](t, data); len(got) != 3 {
		t.Errorf("rejected uploads must not add students, roster has %d", len(got))
	}
}

func TestUploadStudentsMultipartXLSX(t *testing.T) {
	srv := newTestServer(t)
	token := register(t, srv, "t@school.org")
	class := createClass(t, srv, token, "4B")

	f := excelize.NewFile()
	_ = f.SetSheetRow("Sheet1", "A1", &[]any{"student_number", "name"})
	_ = f.SetSheetRow("Sheet1", "A2", &[]any{"10", "مريم"})
	_ = f.SetSheetRow("Sheet1", "A3", &[]any{"11", "يوسف"})
	xlsx, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "roster.xlsx")
	_, _ = part.Write(xlsx.Bytes())
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/classes/"+class.ID+"/students/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, data := send(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: status %d body %s", resp.StatusCode, data)
	}
	imp := decode[ImportResponse](t, data)
	if imp.Count != 2 || imp.Students[0].DisplayName() != "مريم" {
		t.Errorf("unexpected import %+v", imp)
	}
}

func TestReports(t *testing.T) {
	srv := newTestServer(t)
	token := register(t, srv, "t@school.org")
	class := createClass(t, srv, token, "4B")
	base := "/api/classes/" + class.ID
	s1 := addStudent(t, srv, token, class.ID, "1")
	addStudent(t, srv, token, class.ID, "2")
	assess(t, srv, token, class.ID, s1.ID, 1)

	resp, data := doJSON(t, srv, http.MethodGet, base+"/report.csv", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("csv report: status %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Errorf("content type %q", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "attachment") {
		t.Errorf("content disposition %q", resp.Header.Get("Content-Disposition"))
	}
	text := string(data)
	if !strings.HasPrefix(text, "\ufeff") {
		t.Error("csv report should start with a byte order mark")
	}
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(text, "\ufeff")), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines = %d, want header + 2 students:\n%s", len(lines), text)
	}
	if lines[1] != "1,Student 1,1,0,1,100" {
		t.Errorf("first row = %q", lines[1])
	}

	resp, data = doJSON(t, srv, http.MethodGet, base+"/report.xlsx", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("xlsx report: status %d", resp.StatusCode)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open report workbook: %v", err)
	}
	defer wb.Close()
	if got := len(wb.GetSheetList()); got != 2 {
		t.Errorf("sheets = %d, want 2", got)
	}
}

func TestLoadRacingMutationIsNotCached(t *testing.T) {
	h, srv := newTestHandler(t)
	token := register(t, srv, "t@school.org")
	class := createClass(t, srv, token, "4B")
	first := addStudent(t, srv, token, class.ID, "1")
	second := addStudent(t, srv, token, class.ID, "2")

	// A read loads the class before an assessment is recorded and tries to
	// cache it afterwards.
	version := h.cache.Version(class.ID)
	stale, err := h.store.LoadClassState(class.TeacherID, class.ID)
	if err != nil {
		t.Fatalf("LoadClassState: %v", err)
	}
	assess(t, srv, token, class.ID, first.ID, 1)
	if h.cache.PutIfCurrent(context.Background(), &stale, version) {
		t.Fatal("state loaded before the assessment was cached")
	}

	for range 20 {
		resp, data := doJSON(t, srv, http.MethodGet, "/api/classes/"+class.ID+"/random-student", token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("random-student: status %d body %s", resp.StatusCode, data)
		}
		if got := decode[model.Student](t, data); got.ID != second.ID {
			t.Fatalf("picked %s, want the unassessed student %s", got.ID, second.ID)
		}
	}
}
