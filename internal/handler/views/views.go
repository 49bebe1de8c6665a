// Package views renders the HTML pages. Templates are embedded and exposed
// as templ components so handlers render them with Component.Render.
package views

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/cvglobal/aula/internal/i18n"
	"github.com/cvglobal/aula/internal/model"
	"github.com/cvglobal/aula/internal/wizard"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("").Funcs(funcs(context.Background())).ParseFS(templateFS, "templates/*.html"))

// funcs binds the translation and path helpers to ctx.
func funcs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"t": func(id string) string { return appI18n.T(ctx, id) },
		"td": func(id string, kv ...any) string {
			data := make(map[string]any, len(kv)/2)
			for i := 0; i+1 < len(kv); i += 2 {
				data[fmt.Sprint(kv[i])] = kv[i+1]
			}
			return appI18n.Td(ctx, id, data)
		},
		"tp":   func(id string, n int) string { return appI18n.Tp(ctx, id, n) },
		"path": func(p string) string { return model.BasePathFromContext(ctx) + p },
		"csrf": func() string { return model.CSRFTokenFromContext(ctx) },
		"user": func() *model.User { return model.UserFromContext(ctx) },
		"grade": func(v float64) string {
			return strconv.FormatFloat(v, 'f', -1, 64)
		},
		"date": func(t time.Time) string { return t.Local().Format("02/01/2006 15:04") },
	}
}

func render(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t, err := pages.Clone()
		if err != nil {
			return err
		}
		return t.Funcs(funcs(ctx)).ExecuteTemplate(w, name, data)
	})
}

// Flash is a translated message shown at the top of a page.
type Flash struct {
	Kind string // info, success, error
	Text string
}

// Flashes translates wizard notices, appending the backend detail if any.
func Flashes(ctx context.Context, notices []wizard.Notice) []Flash {
	out := make([]Flash, 0, len(notices))
	for _, n := range notices {
		text := appI18n.T(ctx, n.MsgID)
		if n.Detail != "" {
			text += " (" + n.Detail + ")"
		}
		out = append(out, Flash{Kind: string(n.Kind), Text: text})
	}
	return out
}

type loginData struct {
	Error string
}

// LoginPage renders the login form with an optional error message.
func LoginPage(errMsg string) templ.Component {
	return render("login", loginData{Error: errMsg})
}

type resetData struct {
	Token string
	Flash []Flash
	Valid bool
	Done  bool
}

// ResetPasswordPage renders the new-password form for token. When done is
// set the form is replaced by a link to the login page.
func ResetPasswordPage(token string, valid, done bool, flash []Flash) templ.Component {
	return render("reset", resetData{Token: token, Valid: valid, Done: done, Flash: flash})
}

// ResultRow is one of the learner's own grades.
type ResultRow struct {
	CourseName string
	Grade      float64
	Approved   bool
	At         time.Time
}

type coursesData struct {
	Courses []model.Course
	Results []ResultRow
	Flash   []Flash
}

// CoursesPage lists the active courses and the learner's results.
func CoursesPage(courses []model.Course, results []ResultRow, flash []Flash) templ.Component {
	return render("courses", coursesData{Courses: courses, Results: results, Flash: flash})
}

type wizardData struct {
	V           wizard.View
	Flash       []Flash
	PassingMark float64
}

// WizardPage renders the current step of the selected course.
func WizardPage(v wizard.View, flash []Flash) templ.Component {
	return render("wizard", wizardData{V: v, Flash: flash, PassingMark: model.PassingGrade})
}

type adminUsersData struct {
	Users []model.User
	Flash []Flash
}

// AdminUsersPage lists users with the provisioning and reset forms.
func AdminUsersPage(users []model.User, flash []Flash) templ.Component {
	return render("admin_users", adminUsersData{Users: users, Flash: flash})
}

type adminCoursesData struct {
	Courses []model.Course
	Flash   []Flash
}

// AdminCoursesPage lists all courses with the creation and import forms.
func AdminCoursesPage(courses []model.Course, flash []Flash) templ.Component {
	return render("admin_courses", adminCoursesData{Courses: courses, Flash: flash})
}

type adminReportData struct {
	Report       model.ReportExport
	Certificates []model.CertificateRecord
}

// AdminReportPage renders grades, attendance and issued certificates.
func AdminReportPage(report model.ReportExport, certs []model.CertificateRecord) templ.Component {
	return render("admin_report", adminReportData{Report: report, Certificates: certs})
}
