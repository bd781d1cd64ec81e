package middleware

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/diagnostician/internal/metrics"
)

// MetricsCollector counts requests and errors for the runtime endpoint and
// feeds the prometheus request collectors.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
	http         *metrics.HTTP
}

func NewMetricsCollector(requestCount, errorCount *atomic.Int64, m *metrics.HTTP) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
		http:         m,
	}
}

// Middleware returns middleware that counts requests and errors.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		// 4xx and 5xx
		if rw.statusCode >= 400 {
			mc.errorCount.Add(1)
		}
		mc.http.Observe(r.Method, rw.statusCode, time.Since(start))
	})
}
