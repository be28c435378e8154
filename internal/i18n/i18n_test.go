package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return Context(context.Background(), lang)
}

func TestTranslateArabic(t *testing.T) {
	ctx := initLang(t, "ar")

	got := T(ctx, "CycleComplete")
	if got != "تم تقييم جميع الطلاب" {
		t.Errorf("T(CycleComplete) = %q", got)
	}

	got = T(ctx, "ErrImportFailed")
	if got != "خطأ في استيراد الطلاب. تأكد من تنسيق الملف" {
		t.Errorf("T(ErrImportFailed) = %q", got)
	}
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "ErrClassNotFound")
	if got != "Class not found" {
		t.Errorf("T(ErrClassNotFound) = %q, want 'Class not found'", got)
	}
}

func TestDefaultWithoutLocalizer(t *testing.T) {
	if err := Init(""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	got := T(context.Background(), "ErrEmptyRoster")
	if got != "لا يوجد طلاب في هذا الفصل" {
		t.Errorf("T(ErrEmptyRoster) without localizer = %q", got)
	}
}

func TestArabicPlurals(t *testing.T) {
	ctx := initLang(t, "ar")

	tests := []struct {
		count int
		want  string
	}{
		{0, "لم يتم استيراد أي طالب"},
		{1, "تم استيراد طالب واحد بنجاح"},
		{2, "تم استيراد طالبين بنجاح"},
		{5, "تم استيراد 5 طلاب بنجاح"},
		{11, "تم استيراد 11 طالباً بنجاح"},
		{100, "تم استيراد 100 طالب بنجاح"},
	}
	for _, tt := range tests {
		if got := Tp(ctx, "StudentsImported", tt.count); got != tt.want {
			t.Errorf("Tp(StudentsImported, %d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestEnglishPlurals(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "StudentsDeleted", 1); got != "Deleted 1 student" {
		t.Errorf("Tp(StudentsDeleted, 1) = %q", got)
	}
	if got := Tp(ctx, "StudentsDeleted", 3); got != "Deleted 3 students" {
		t.Errorf("Tp(StudentsDeleted, 3) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ErrImportRow", map[string]any{"Row": 4, "Reason": "empty_student_number"})
	if got != "Error on row 4: empty_student_number" {
		t.Errorf("Td(ErrImportRow) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "ar")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewareInjectsLocalizer(t *testing.T) {
	initLang(t, "ar")

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ErrClassNotFound")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != "Class not found" {
		t.Errorf("got %q, want English message", got)
	}
}
