package service

import (
	"context"
	"log/slog"

	"synxronfiles/internal/domain"
	"synxronfiles/internal/metrics"
)

// LogErrorReporter пишет ошибки в лог и считает их в метрике
type LogErrorReporter struct {
	logger *slog.Logger
}

var _ domain.ErrorReporter = (*LogErrorReporter)(nil)

func NewLogErrorReporter(logger *slog.Logger) *LogErrorReporter {
	return &LogErrorReporter{logger: logger.With(slog.String("component", "error_reporter"))}
}

func (r *LogErrorReporter) ReportError(ctx context.Context, err error, attrs ...any) {
	metrics.ReportedErrorsTotal.Inc()
	r.logger.ErrorContext(ctx, err.Error(), attrs...)
}
