package logging

import (
	"net"
	"net/http"
	"strings"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// AccessLog is HTTP middleware logging one line per request once the
// response is written. Server errors log at warn level and everything else
// at debug so probes and scrapes stay quiet.
func AccessLog(logger *Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			args := []any{
				Method(r.Method),
				Path(r.URL.Path),
				Status(rec.status),
				Duration(time.Since(start).Milliseconds()),
				IP(clientIP(r)),
			}
			if rec.status >= http.StatusInternalServerError {
				logger.WarnContext(r.Context(), "request failed", args...)
				return
			}
			logger.DebugContext(r.Context(), "request served", args...)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
