package httpapi

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// LogRequests logs one line per request once the response is written.
func LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logWriter := &statusCapturingWriter{ResponseWriter: w}

		next.ServeHTTP(logWriter, r)

		fields := log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      logWriter.statusCode(),
			"bytes":       logWriter.bytes,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if runID := r.PathValue("run_id"); runID != "" {
			fields["run_id"] = runID
		}
		log.WithFields(fields).Info("http request")
	})
}

type statusCapturingWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusCapturingWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusCapturingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *statusCapturingWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
