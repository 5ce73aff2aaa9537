// Package logging configures logrus and carries a request-scoped entry
// through the request context.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldUserID    = "user_id"
)

// Component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentStorage = "storage"
	ComponentSession = "session"
	ComponentExpense = "expense"
	ComponentEvents  = "events"
)

type contextKey string

const entryContextKey contextKey = "logger"

// New builds a logger writing to stdout. Level and format are expected to
// have been validated by the config package; unknown values fall back to
// info and text.
func New(level, format string) *logrus.Logger {
	return NewWithOutput(os.Stdout, level, format)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(out io.Writer, level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// WithEntry returns a copy of ctx carrying entry.
func WithEntry(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, entryContextKey, entry)
}

// FromContext returns the request-scoped entry, or one backed by the
// standard logrus logger when none was attached.
func FromContext(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(entryContextKey).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
