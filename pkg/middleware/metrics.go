package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// knownMethods はメトリクスのラベルにそのまま使うHTTPメソッド。
var knownMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodConnect: {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// methodLabel はメソッドをラベル値に変換する。標準以外のメソッドは "other" にまとめる。
func methodLabel(method string) string {
	if _, ok := knownMethods[method]; ok {
		return method
	}
	return "other"
}

// Metrics はリクエスト数と処理時間をPrometheusに記録するGinミドルウェアを返す。
// code は実際のHTTPステータス。エラーレスポンスは常に200になる点に注意。
func Metrics(reg prometheus.Registerer) gin.HandlerFunc {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total number of HTTP requests handled by the gateway",
		},
		[]string{"method", "code"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "Time spent handling HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	reg.MustRegister(requests, duration)

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		method := methodLabel(c.Request.Method)
		requests.WithLabelValues(method, strconv.Itoa(c.Writer.Status())).Inc()
		duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}
