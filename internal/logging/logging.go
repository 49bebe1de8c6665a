// Package logging configures the process-wide slog logger and optional
// Rollbar error reporting.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/rollbar/rollbar-go"
)

// Options selects the log output.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text, json

	// RollbarToken enables forwarding of error records when set.
	RollbarToken string
	Env          string
	Version      string
	Host         string
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs the default slog logger writing to w. The returned func
// flushes pending reports and must be called before exit.
func Setup(w io.Writer, opts Options) func() {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		h = slog.NewJSONHandler(w, handlerOpts)
	default:
		h = slog.NewTextHandler(w, handlerOpts)
	}

	closeFn := func() {}
	if opts.RollbarToken != "" {
		client := rollbar.New(opts.RollbarToken, opts.Env, opts.Version, opts.Host, "")
		h = NewReportingHandler(h, client)
		closeFn = client.Wait
	}

	slog.SetDefault(slog.New(h))
	return closeFn
}

// Reporter receives error-level records. *rollbar.Client implements it.
type Reporter interface {
	ErrorWithExtras(level string, err error, extras map[string]interface{})
	MessageWithExtras(level string, msg string, extras map[string]interface{})
}

// ReportingHandler passes every record to the wrapped handler and also sends
// records at error level or above to a Reporter. An attribute named "error"
// holding an error value is reported as the error itself.
type ReportingHandler struct {
	next     slog.Handler
	reporter Reporter
	// attrs holds WithAttrs attributes keyed by the group open when they were added.
	attrs []groupedAttr
	group string
}

type groupedAttr struct {
	prefix string
	attr   slog.Attr
}

func qualify(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// NewReportingHandler wraps next.
func NewReportingHandler(next slog.Handler, r Reporter) *ReportingHandler {
	return &ReportingHandler{next: next, reporter: r}
}

func (h *ReportingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ReportingHandler) Handle(ctx context.Context, rec slog.Record) error {
	if rec.Level >= slog.LevelError {
		h.report(rec)
	}
	return h.next.Handle(ctx, rec)
}

func (h *ReportingHandler) report(rec slog.Record) {
	extras := make(map[string]interface{}, len(h.attrs)+rec.NumAttrs()+1)
	var reported error

	var add func(prefix string, a slog.Attr)
	add = func(prefix string, a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Value.Kind() == slog.KindGroup {
			sub := prefix
			if a.Key != "" {
				sub = qualify(prefix, a.Key)
			}
			for _, ga := range a.Value.Group() {
				add(sub, ga)
			}
			return
		}
		if e, ok := a.Value.Any().(error); ok && a.Key == "error" && reported == nil {
			reported = e
			return
		}
		extras[qualify(prefix, a.Key)] = a.Value.String()
	}
	for _, ga := range h.attrs {
		add(ga.prefix, ga.attr)
	}
	rec.Attrs(func(a slog.Attr) bool {
		add(h.group, a)
		return true
	})

	if reported != nil {
		extras["message"] = rec.Message
		h.reporter.ErrorWithExtras(rollbar.ERR, reported, extras)
		return
	}
	h.reporter.MessageWithExtras(rollbar.ERR, rec.Message, extras)
}

func (h *ReportingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.next = h.next.WithAttrs(attrs)
	nh.attrs = append([]groupedAttr(nil), h.attrs...)
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, groupedAttr{prefix: h.group, attr: a})
	}
	return &nh
}

func (h *ReportingHandler) WithGroup(name string) slog.Handler {
	nh := *h
	nh.next = h.next.WithGroup(name)
	if name != "" {
		nh.group = qualify(nh.group, name)
	}
	return &nh
}
