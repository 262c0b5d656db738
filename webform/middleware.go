package webform

import (
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/go-chi/chi/v5/middleware"
)

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLogger logs method, path, status code and duration for every request.
func requestLogger(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			logger.Printf("[%s] %s %s %d %s", middleware.GetReqID(r.Context()), r.Method, r.URL.Path, rw.statusCode, time.Since(start).Round(time.Microsecond))
		})
	}
}
