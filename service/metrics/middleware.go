package metrics

import (
	"net/http"
	"time"
)

// HTTPMetricsMiddleware records request count and latency under route, a fixed
// pattern such as "/api/v1/state" rather than the raw path. A nil Metrics records nothing.
func HTTPMetricsMiddleware(m *Metrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			m.RecordHTTPRequest(route, r.Method, rec.status(), time.Since(start).Seconds())
		})
	}
}

// statusRecorder remembers the first status written. Streams are long-lived, so it
// must keep Flush and Unwrap working for the SSE handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusRecorder) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}
