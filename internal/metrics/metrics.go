// Package metrics Prometheus метрики сервиса файлов.
// Бизнес-метрики обновляются из сервисного слоя, HTTP метрики из Middleware.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Значения лейбла result
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Бизнес-метрики
var (
	// UploadsTotal загрузки и обновления содержимого
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synxronfiles_uploads_total",
			Help: "Количество загрузок и обновлений содержимого файлов",
		},
		[]string{"operation", "result"},
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "synxronfiles_upload_bytes",
			Help:    "Размер успешно загруженных файлов в байтах",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 12),
		},
	)

	CopiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synxronfiles_copies_total",
			Help: "Количество скопированных файлов",
		},
		[]string{"result"},
	)

	// ScanSubmissionsTotal mode: stream или async
	ScanSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synxronfiles_scan_submissions_total",
			Help: "Количество отправок файлов на антивирусную проверку",
		},
		[]string{"mode"},
	)

	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synxronfiles_rollbacks_total",
			Help: "Количество откатов операций",
		},
		[]string{"operation"},
	)

	ReportedErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synxronfiles_reported_errors_total",
			Help: "Количество ошибок, переданных в канал отчетов",
		},
	)
)

// HTTP метрики
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synxronfiles_http_requests_total",
			Help: "Количество HTTP-запросов",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synxronfiles_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Result переводит ошибку в значение лейбла result
func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// Middleware собирает метрики запросов. Лейбл route берется из шаблона chi,
// чтобы идентификаторы не попадали в метрики.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap для http.ResponseController
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
