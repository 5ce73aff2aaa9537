package logging

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// RequestIDHeader is honoured on input and echoed on every response.
const RequestIDHeader = "X-Request-ID"

// Middleware assigns a request id, attaches a request-scoped entry to the
// context and logs request completion.
func Middleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > 128 {
				requestID = GenerateRequestID()
			}
			w.Header().Set(RequestIDHeader, requestID)

			entry := logger.WithFields(logrus.Fields{
				FieldComponent: ComponentHTTP,
				FieldRequestID: requestID,
				FieldMethod:    r.Method,
				FieldPath:      r.URL.Path,
			})

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(WithEntry(r.Context(), entry)))

			done := entry.WithFields(logrus.Fields{
				FieldStatus:   rw.statusCode,
				FieldDuration: time.Since(start).Milliseconds(),
			})
			switch {
			case rw.statusCode >= 500:
				done.Error("HTTP request completed")
			case rw.statusCode >= 400:
				done.Warn("HTTP request completed")
			default:
				done.Info("HTTP request completed")
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
