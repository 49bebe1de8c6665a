package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cvglobal/aula/internal/certificate"
	"github.com/cvglobal/aula/internal/handler"
	appI18n "github.com/cvglobal/aula/internal/i18n"
	"github.com/cvglobal/aula/internal/logging"
	"github.com/cvglobal/aula/internal/mail"
	"github.com/cvglobal/aula/internal/model"
	"github.com/cvglobal/aula/internal/storage"
	"github.com/cvglobal/aula/internal/store"
	"github.com/cvglobal/aula/internal/wizard"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "aula",
		Short:   "Guided course wizard with grades and certificates",
		Version: version,
	}

	serve := serveCmd()
	root.AddCommand(serve, addUserCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `aula --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("rollbar-token", "", "Report error logs to Rollbar with this token")
	f.String("env", "development", "Environment name reported to Rollbar")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "aula.db", "SQLite database path")
	f.StringSliceP("courses", "c", nil, "Paths to course JSON files imported once each (repeatable)")
	f.StringP("lang", "l", "es", "Default UI language (es, en)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /aula)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-email", "admin@localhost", "Email of the initial admin user")
	f.String("admin-password", "", "Initial admin password (or set AULA_ADMIN_PASSWORD)")
	f.Bool("gate-forms", false, "Keep next disabled on Microsoft Forms steps until the learner confirms submission")
	f.String("reset-redirect", "", "Absolute URL of the password reset page (default: this server)")

	f.String("storage", "local", "Certificate storage (local, sftp)")
	f.String("storage-dir", "certificates", "Directory for local certificate storage")
	f.String("public-base-url", "", "Public URL under which stored certificates are served")
	f.String("sftp-host", "", "SFTP host")
	f.Int("sftp-port", 22, "SFTP port")
	f.String("sftp-user", "", "SFTP user")
	f.String("sftp-pass", "", "SFTP password")
	f.String("sftp-dir", "/", "Remote directory for certificates")
	f.String("sftp-host-key", "", "SFTP server public key in authorized_keys format")
	f.Bool("sftp-insecure", false, "Skip SFTP host key verification")

	f.String("mail", "console", "Mail transport (console, sendgrid)")
	f.String("sendgrid-key", "", "SendGrid API key")
	f.String("mail-from", "aula@localhost", "Sender address for outgoing mail")
	f.String("mail-from-name", "Aula", "Sender display name")
	f.String("certificate-webhook", "", "POST certificate notices to this URL instead of mailing them directly")
	addLogFlags(cmd)
	return cmd
}

func addUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user account",
		RunE:  runAddUser,
	}
	f := cmd.Flags()
	f.String("db", "aula.db", "SQLite database path")
	f.String("email", "", "Email address (required)")
	f.String("name", "", "Display name")
	f.String("password", "", "Password; learners usually get their document number (required)")
	f.String("role", string(model.UserRoleStudent), "Role (student, admin)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export grades and attendance as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "aula.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(v *viper.Viper) func() {
	host, _ := os.Hostname()
	return logging.Setup(os.Stderr, logging.Options{
		Level:        v.GetString("log-level"),
		Format:       v.GetString("log-format"),
		RollbarToken: v.GetString("rollbar-token"),
		Env:          v.GetString("env"),
		Version:      version,
		Host:         host,
	})
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("AULA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("aula")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/aula")
	v.AddConfigPath("/etc/aula")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	defer setupLogging(v)()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(ctx, db, v.GetString("admin-email"), v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := loadCourses(ctx, db, validate, v.GetStringSlice("courses")); err != nil {
		return fmt.Errorf("load courses: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	cfg := model.AppConfig{
		BasePath:         basePath,
		SecureCookies:    v.GetBool("secure-cookies"),
		GateForms:        v.GetBool("gate-forms"),
		ResetRedirectURL: v.GetString("reset-redirect"),
	}

	objects, err := newObjectStore(v, &cfg)
	if err != nil {
		return fmt.Errorf("certificate storage: %w", err)
	}
	sender, err := newSender(v)
	if err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	var notifier certificate.Notifier = mail.SenderNotifier{Sender: sender}
	if hook := v.GetString("certificate-webhook"); hook != "" {
		notifier = mail.NewWebhook(hook)
	}

	issuer := certificate.New(objects, notifier, db)
	controller := wizard.New(db, issuer, wizard.Options{GateOnCompletion: cfg.GateForms})
	sessions := wizard.NewSessions()

	h, err := handler.New(db, controller, sessions, sender, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	compressor := middleware.NewCompressor(5, "text/html", "text/css", "application/json")
	compressor.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(compressor.Handler)
	r.Use(appI18n.Middleware())

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go janitor(ctx, db, sessions, 10*time.Minute, 2*time.Hour)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	courseCount, err := db.CourseCount(ctx)
	if err != nil {
		slog.Warn("failed to count courses", "error", err)
	}
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"base_path", basePath,
		"courses", courseCount,
		"gate_forms", cfg.GateForms,
		"storage", v.GetString("storage"),
		"mail", v.GetString("mail"),
		"webhook", v.GetString("certificate-webhook") != "",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// janitor purges expired logins and idle wizard states until ctx is done.
func janitor(ctx context.Context, db *store.Store, sessions *wizard.Sessions, every, maxIdle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := db.CleanupExpiredSessions(ctx)
			if err != nil {
				slog.Warn("session cleanup failed", "error", err)
			}
			swept := sessions.Sweep(maxIdle)
			if n > 0 || swept > 0 {
				slog.Debug("cleaned up sessions", "expired", n, "idle_wizards", swept)
			}
		}
	}
}

func newObjectStore(v *viper.Viper, cfg *model.AppConfig) (storage.ObjectStore, error) {
	switch strings.ToLower(v.GetString("storage")) {
	case "sftp":
		return storage.NewSFTP(storage.SFTPConfig{
			Host:                  v.GetString("sftp-host"),
			Port:                  v.GetInt("sftp-port"),
			User:                  v.GetString("sftp-user"),
			Pass:                  v.GetString("sftp-pass"),
			RemoteDir:             v.GetString("sftp-dir"),
			HostKey:               v.GetString("sftp-host-key"),
			InsecureIgnoreHostKey: v.GetBool("sftp-insecure"),
			BaseURL:               v.GetString("public-base-url"),
		})
	case "local", "":
		dir := v.GetString("storage-dir")
		base := v.GetString("public-base-url")
		if base == "" {
			base = "http://localhost" + v.GetString("addr") + cfg.BasePath + "/files"
			slog.Warn("public-base-url not set, certificate links assume a local server", "base", base)
		}
		cfg.FilesDir = dir
		return storage.NewLocal(dir, base)
	default:
		return nil, fmt.Errorf("unknown storage %q", v.GetString("storage"))
	}
}

func newSender(v *viper.Viper) (mail.Sender, error) {
	switch strings.ToLower(v.GetString("mail")) {
	case "sendgrid":
		key := v.GetString("sendgrid-key")
		if key == "" {
			return nil, errors.New("sendgrid-key is required for the sendgrid transport")
		}
		return mail.NewSendGrid(key, v.GetString("mail-from-name"), v.GetString("mail-from"), ""), nil
	case "console", "":
		return mail.Console{From: v.GetString("mail-from")}, nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", v.GetString("mail"))
	}
}

func runAddUser(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	defer setupLogging(v)()
	ctx := context.Background()

	role := model.UserRole(v.GetString("role"))
	if role != model.UserRoleStudent && role != model.UserRoleAdmin {
		return fmt.Errorf("invalid role %q", role)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	id, err := createUser(ctx, db, v.GetString("email"), v.GetString("name"), v.GetString("password"), role)
	if err != nil {
		return err
	}
	slog.Info("user created", "id", id, "email", v.GetString("email"), "role", role)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	defer setupLogging(v)()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	report, err := db.Report(context.Background())
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeReport(w, report)
}
