package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/cvglobal/aula/internal/catalog"
	"github.com/cvglobal/aula/internal/handler/views"
	appI18n "github.com/cvglobal/aula/internal/i18n"
	"github.com/cvglobal/aula/internal/mail"
	"github.com/cvglobal/aula/internal/model"
)

type userForm struct {
	Email       string         `validate:"required,email"`
	DisplayName string         `validate:"max=120"`
	DocumentID  string         `validate:"required,min=6,max=32"`
	Role        model.UserRole `validate:"oneof=student admin"`
}

type courseForm struct {
	Name             string `validate:"required,max=200"`
	MaterialURL      string `validate:"required,url"`
	VideoURL         string `validate:"required,url"`
	AttendanceURL    string `validate:"omitempty,url"`
	SurveyURL        string `validate:"omitempty,url"`
	ExamURL          string `validate:"omitempty,url"`
	EffectivenessURL string `validate:"omitempty,url"`
	Active           bool
}

func flashOf(kind, text string) []views.Flash {
	return []views.Flash{{Kind: kind, Text: text}}
}

// invalidFlash lists the fields rejected by the validator.
func invalidFlash(ctx context.Context, err error) []views.Flash {
	var fields []string
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
	}
	return flashOf("error", appI18n.Td(ctx, "FormInvalid", map[string]any{"Fields": strings.Join(fields, ", ")}))
}

func (h *Handler) renderAdminUsers(w http.ResponseWriter, r *http.Request, status int, flash []views.Flash) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	renderHTML(w, r, status, views.AdminUsersPage(users, flash))
}

func (h *Handler) handleAdminUsersPage(w http.ResponseWriter, r *http.Request) {
	h.renderAdminUsers(w, r, http.StatusOK, nil)
}

// handleCreateUser provisions an account whose initial password is the
// learner's document number. Accounts are usable immediately.
func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form := userForm{
		Email:       strings.TrimSpace(r.FormValue("email")),
		DisplayName: strings.TrimSpace(r.FormValue("display_name")),
		DocumentID:  strings.TrimSpace(r.FormValue("document_id")),
		Role:        model.UserRole(r.FormValue("role")),
	}
	if form.Role == "" {
		form.Role = model.UserRoleStudent
	}
	if err := h.validate.Struct(form); err != nil {
		h.renderAdminUsers(w, r, http.StatusBadRequest, invalidFlash(ctx, err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.DocumentID), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	displayName := form.DisplayName
	if displayName == "" {
		displayName = form.Email
	}
	_, err = h.store.CreateUser(ctx, model.User{
		Email:        form.Email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         form.Role,
		Active:       true,
	})
	if err != nil {
		h.renderAdminUsers(w, r, http.StatusConflict, flashOf("error", appI18n.T(ctx, "UserCreateFailed")))
		return
	}

	slog.Info("user provisioned", "email", form.Email, "role", form.Role)
	h.renderAdminUsers(w, r, http.StatusOK, flashOf("success", appI18n.T(ctx, "UserCreated")))
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.store.DeleteUserSessions(r.Context(), id); err != nil {
		slog.Warn("failed to drop sessions of toggled user", "id", id, "error", err)
	}

	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}

// resetLink points at the configured reset page, falling back to our own.
func (h *Handler) resetLink(r *http.Request, token string) string {
	base := h.config.ResetRedirectURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host + h.path("/reset-password")
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *Handler) handleSendPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := strings.TrimSpace(r.FormValue("email"))

	user, err := h.store.GetUserByEmail(ctx, email)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		h.renderAdminUsers(w, r, http.StatusNotFound, flashOf("error", appI18n.T(ctx, "UnknownEmail")))
		return
	}

	pr, err := h.store.CreatePasswordReset(ctx, user.ID)
	if err != nil {
		slog.Error("failed to create password reset", "user_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	msg := mail.PasswordResetMessage(ctx, user.Email, h.resetLink(r, pr.Token))
	if err := h.mailer.Send(ctx, msg); err != nil {
		slog.Error("failed to send password reset", "email", user.Email, "error", err)
		h.renderAdminUsers(w, r, http.StatusBadGateway, flashOf("error", appI18n.T(ctx, "ResetLinkFailed")+" ("+err.Error()+")"))
		return
	}

	slog.Info("password reset sent", "email", user.Email)
	h.renderAdminUsers(w, r, http.StatusOK, flashOf("success", appI18n.Td(ctx, "ResetLinkSent", map[string]any{"Email": user.Email})))
}

func (h *Handler) renderAdminCourses(w http.ResponseWriter, r *http.Request, status int, flash []views.Flash) {
	courses, err := h.store.ListCourses(r.Context(), false)
	if err != nil {
		slog.Error("failed to list courses", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	renderHTML(w, r, status, views.AdminCoursesPage(courses, flash))
}

func (h *Handler) handleAdminCoursesPage(w http.ResponseWriter, r *http.Request) {
	h.renderAdminCourses(w, r, http.StatusOK, nil)
}

func (h *Handler) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	field := func(name string) string { return strings.TrimSpace(r.FormValue(name)) }
	form := courseForm{
		Name:             field("name"),
		MaterialURL:      field("url_material"),
		VideoURL:         field("url_video"),
		AttendanceURL:    field("url_attendance"),
		SurveyURL:        field("url_survey"),
		ExamURL:          field("url_exam"),
		EffectivenessURL: field("url_effectiveness"),
		Active:           r.FormValue("active") == "true",
	}
	if err := h.validate.Struct(form); err != nil {
		h.renderAdminCourses(w, r, http.StatusBadRequest, invalidFlash(ctx, err))
		return
	}

	id, err := h.store.CreateCourse(ctx, model.Course{
		Name:             form.Name,
		MaterialURL:      form.MaterialURL,
		VideoURL:         form.VideoURL,
		AttendanceURL:    form.AttendanceURL,
		SurveyURL:        form.SurveyURL,
		ExamURL:          form.ExamURL,
		EffectivenessURL: form.EffectivenessURL,
		Active:           form.Active,
	})
	if err != nil {
		slog.Error("failed to create course", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("course created", "id", id, "name", form.Name)
	h.renderAdminCourses(w, r, http.StatusOK, flashOf("success", appI18n.T(ctx, "CourseCreated")))
}

func (h *Handler) handleToggleCourseActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "courseID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid course ID", http.StatusBadRequest)
		return
	}

	if err := h.store.ToggleCourseActive(r.Context(), id); err != nil {
		slog.Error("failed to toggle course active", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.path("/admin/courses"), http.StatusSeeOther)
}

// handleUploadCourses imports a JSON course file. Uploads are keyed by
// content, so the same file is never imported twice.
func (h *Handler) handleUploadCourses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	file, header, err := r.FormFile("courses_file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, 10<<20))
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	n, err := catalog.Import(ctx, h.store, h.validate, "upload:"+catalog.Hash(data), data)
	switch {
	case errors.Is(err, catalog.ErrAlreadyImported):
		h.renderAdminCourses(w, r, http.StatusOK, flashOf("info", appI18n.T(ctx, "UploadDuplicate")))
		return
	case err != nil:
		slog.Warn("course upload rejected", "filename", header.Filename, "error", err)
		h.renderAdminCourses(w, r, http.StatusBadRequest, flashOf("error", err.Error()))
		return
	}

	slog.Info("uploaded courses via admin", "filename", header.Filename, "count", n)
	h.renderAdminCourses(w, r, http.StatusOK, flashOf("success", appI18n.Tp(ctx, "CoursesImported", n)))
}

func (h *Handler) handleReportPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.store.Report(ctx)
	if err != nil {
		slog.Error("failed to build report", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	certs, err := h.store.ListCertificates(ctx)
	if err != nil {
		slog.Error("failed to list certificates", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	renderHTML(w, r, http.StatusOK, views.AdminReportPage(report, certs))
}

func (h *Handler) handleReportJSON(w http.ResponseWriter, r *http.Request) {
	report, err := h.store.Report(r.Context())
	if err != nil {
		slog.Error("failed to build report", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="report.json"`)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Error("failed to write report", "error", err)
	}
}
