package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/okian/pitchjudge/pkg/logger"
	"github.com/okian/pitchjudge/pkg/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// statusClass labels the error metrics of one response status.
type statusClass struct {
	errorType string
	severity  string
}

// classifyStatus maps an error status to its metric labels. ok is false
// below 400.
func classifyStatus(code int) (c statusClass, ok bool) {
	switch {
	case code == http.StatusServiceUnavailable:
		return statusClass{"unavailable", "high"}, true
	case code >= http.StatusInternalServerError:
		return statusClass{"server_error", "high"}, true
	case code == http.StatusTooManyRequests:
		return statusClass{"rate_limit", "medium"}, true
	case code == http.StatusConflict:
		return statusClass{"conflict", "medium"}, true
	case code == http.StatusNotFound:
		return statusClass{"not_found", "medium"}, true
	case code >= http.StatusBadRequest:
		return statusClass{"client_error", "medium"}, true
	default:
		return statusClass{}, false
	}
}

// RequestIDMiddleware reuses the caller's X-Request-ID or mints one, echoes
// it on the response and attaches it to the request's log fields.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := logger.WithFields(r.Context(), logger.String("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MetricsMiddleware records Prometheus metrics for every routed request.
// The endpoint label is the route template, never the raw path. Server
// errors are also logged.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := routeTemplate(r)
		took := time.Since(start)
		ms := float64(took.Milliseconds())
		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, ms)

		class, failed := classifyStatus(rec.status)
		if !failed {
			return
		}
		metrics.RecordErrorByEndpoint(endpoint, r.Method, class.errorType)
		metrics.RecordErrorByType(class.errorType, class.severity)
		metrics.RecordErrorLatency("http", class.errorType, ms)
		if rec.status >= http.StatusInternalServerError {
			logger.Get().Error(r.Context(), "request failed",
				logger.String("method", r.Method),
				logger.String("endpoint", endpoint),
				logger.Int("status", rec.status),
				logger.Duration("took", took),
			)
		}
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// statusRecorder remembers the status written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}
