package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cvglobal/aula/internal/handler/views"
	"github.com/cvglobal/aula/internal/mail"
	"github.com/cvglobal/aula/internal/model"
	"github.com/cvglobal/aula/internal/store"
	"github.com/cvglobal/aula/internal/wizard"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	wizard   *wizard.Controller
	sessions *wizard.Sessions
	mailer   mail.Sender
	validate *validator.Validate
	config   model.AppConfig
}

// New creates a new Handler.
func New(s *store.Store, wc *wizard.Controller, sessions *wizard.Sessions, mailer mail.Sender, cfg model.AppConfig) (*Handler, error) {
	if s == nil || wc == nil || sessions == nil || mailer == nil {
		return nil, errors.New("handler: store, wizard, sessions and mailer are required")
	}
	return &Handler{
		store:    s,
		wizard:   wc,
		sessions: sessions,
		mailer:   mailer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		config:   cfg,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	if h.config.FilesDir != "" {
		fs := http.StripPrefix(h.path("/files/"), http.FileServer(http.Dir(h.config.FilesDir)))
		r.Handle("/files/*", fs)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)

		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Get("/reset-password", h.handleResetPasswordPage)
		r.Post("/reset-password", h.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/logout", h.handleLogout)
			r.Get("/", h.handleIndex)
			r.Get("/courses", h.handleCourses)
			r.Post("/courses/{courseID}/start", h.handleStartCourse)
			r.Get("/wizard", h.handleWizardPage)
			r.Post("/wizard/next", h.handleNext)
			r.Post("/wizard/previous", h.handlePrevious)
			r.Post("/wizard/attest", h.handleAttest)
			r.Post("/wizard/grade", h.handleGrade)
			r.Post("/wizard/certificate", h.handleCertificate)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/users", h.handleAdminUsersPage)
				r.Post("/users", h.handleCreateUser)
				r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
				r.Post("/password-reset", h.handleSendPasswordReset)
				r.Get("/courses", h.handleAdminCoursesPage)
				r.Post("/courses", h.handleCreateCourse)
				r.Post("/courses/upload", h.handleUploadCourses)
				r.Post("/courses/{courseID}/toggle", h.handleToggleCourseActive)
				r.Get("/report", h.handleReportPage)
				r.Get("/report.json", h.handleReportJSON)
			})
		})
	})
}

// BasePathMiddleware exposes the configured URL prefix to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func renderHTML(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.path("/courses"), http.StatusSeeOther)
}

// handleCourses lists the active courses. Coming back to the list drops the
// current course selection.
func (h *Handler) handleCourses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)

	var notices []wizard.Notice
	h.sessions.With(model.SessionIDFromContext(ctx), func(st *wizard.State) {
		h.wizard.Reset(st)
		notices = st.TakeNotices()
	})
	flash := views.Flashes(ctx, notices)

	courses, err := h.wizard.Courses(ctx)
	if err != nil {
		slog.Error("failed to list courses", "error", err)
		flash = append(flash, views.Flashes(ctx, []wizard.Notice{{Kind: wizard.NoticeError, MsgID: "CoursesLoadFailed", Detail: err.Error()}})...)
	}

	results, err := h.learnerResults(ctx, user.Email)
	if err != nil {
		slog.Warn("failed to list learner results", "email", user.Email, "error", err)
	}

	renderHTML(w, r, http.StatusOK, views.CoursesPage(courses, results, flash))
}

func (h *Handler) learnerResults(ctx context.Context, email string) ([]views.ResultRow, error) {
	grades, err := h.store.ListGrades(ctx, email)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string)
	rows := make([]views.ResultRow, 0, len(grades))
	for _, g := range grades {
		name, ok := names[g.CourseID]
		if !ok {
			c, err := h.store.GetCourse(ctx, g.CourseID)
			if err != nil {
				return nil, err
			}
			if c != nil {
				name = c.Name
			}
			names[g.CourseID] = name
		}
		rows = append(rows, views.ResultRow{CourseName: name, Grade: g.Value, Approved: g.Passed(), At: g.CreatedAt})
	}
	return rows, nil
}

func (h *Handler) handleStartCourse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	courseID, err := strconv.ParseInt(chi.URLParam(r, "courseID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid course ID", http.StatusBadRequest)
		return
	}

	course, err := h.store.GetCourse(ctx, courseID)
	if err != nil {
		slog.Error("failed to get course", "course_id", courseID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if course == nil || !course.Active {
		courses, _ := h.wizard.Courses(ctx)
		flash := views.Flashes(ctx, []wizard.Notice{{Kind: wizard.NoticeError, MsgID: "CourseNotFound"}})
		renderHTML(w, r, http.StatusNotFound, views.CoursesPage(courses, nil, flash))
		return
	}

	user := model.UserFromContext(ctx)
	h.sessions.With(model.SessionIDFromContext(ctx), func(st *wizard.State) {
		h.wizard.SelectCourse(ctx, st, user, *course)
	})
	http.Redirect(w, r, h.path("/wizard"), http.StatusSeeOther)
}

func (h *Handler) handleWizardPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		view    wizard.View
		notices []wizard.Notice
		active  bool
	)
	h.sessions.With(model.SessionIDFromContext(ctx), func(st *wizard.State) {
		active = st.Active()
		if active {
			view = h.wizard.Render(st)
			notices = st.TakeNotices()
		}
	})
	if !active {
		http.Redirect(w, r, h.path("/courses"), http.StatusSeeOther)
		return
	}
	renderHTML(w, r, http.StatusOK, views.WizardPage(view, views.Flashes(ctx, notices)))
}

// transition runs fn on the caller's wizard state and redirects back to the
// wizard page, or to the course list when no course is selected.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, st *wizard.State, user *model.User) error) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)

	var err error
	h.sessions.With(model.SessionIDFromContext(ctx), func(st *wizard.State) {
		err = fn(ctx, st, user)
	})
	if errors.Is(err, wizard.ErrNoCourse) {
		http.Redirect(w, r, h.path("/courses"), http.StatusSeeOther)
		return
	}
	if err != nil {
		slog.Debug("wizard transition rejected", "path", r.URL.Path, "error", err)
	}
	http.Redirect(w, r, h.path("/wizard"), http.StatusSeeOther)
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, st *wizard.State, _ *model.User) error {
		_, err := h.wizard.Next(ctx, st)
		return err
	})
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, st *wizard.State, _ *model.User) error {
		_, err := h.wizard.Previous(ctx, st)
		return err
	})
}

func (h *Handler) handleAttest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, st *wizard.State, user *model.User) error {
		return h.wizard.Attest(ctx, st, user)
	})
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	raw := r.FormValue("grade")
	h.transition(w, r, func(ctx context.Context, st *wizard.State, user *model.User) error {
		_, err := h.wizard.SubmitGrade(ctx, st, user, raw)
		return err
	})
}

func (h *Handler) handleCertificate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, st *wizard.State, user *model.User) error {
		_, err := h.wizard.IssueCertificate(ctx, st, user)
		return err
	})
}
