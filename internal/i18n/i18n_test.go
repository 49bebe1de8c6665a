package i18n

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "StepExam"); got != "Final exam" {
		t.Errorf("T(StepExam) = %q, want 'Final exam'", got)
	}
	if got := T(ctx, "Next"); got != "Next" {
		t.Errorf("T(Next) = %q, want 'Next'", got)
	}
}

func TestTranslateSpanish(t *testing.T) {
	ctx := initLang(t, "es")

	if got := T(ctx, "StepExam"); got != "Examen final" {
		t.Errorf("T(StepExam) = %q, want 'Examen final'", got)
	}
	if got := T(ctx, "Finish"); got != "Finalizar" {
		t.Errorf("T(Finish) = %q, want 'Finalizar'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "CoursesAvailable", 1); got != "1 course available." {
		t.Errorf("Tp(CoursesAvailable, 1) = %q", got)
	}
	if got := Tp(ctx, "CoursesAvailable", 5); got != "5 courses available." {
		t.Errorf("Tp(CoursesAvailable, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "StepNofM", map[string]any{"N": 2, "Total": 6})
	if got != "Step 2 of 6" {
		t.Errorf("Td(StepNofM) = %q, want 'Step 2 of 6'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	keys := func(lang string) map[string]bool {
		data, err := localeFS.ReadFile("locales/" + lang + ".json")
		if err != nil {
			t.Fatalf("read %s: %v", lang, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("parse %s: %v", lang, err)
		}
		out := make(map[string]bool, len(m))
		for k := range m {
			out[k] = true
		}
		return out
	}
	en, es := keys("en"), keys("es")
	for k := range en {
		if !es[k] {
			t.Errorf("es.json is missing %q", k)
		}
	}
	for k := range es {
		if !en[k] {
			t.Errorf("en.json is missing %q", k)
		}
	}
}

func TestMiddlewareHonoursAcceptLanguage(t *testing.T) {
	if err := Init("es"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var got string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Previous")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Previous" {
		t.Errorf("with Accept-Language en: %q, want 'Previous'", got)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != "Anterior" {
		t.Errorf("default language: %q, want 'Anterior'", got)
	}
}
