package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"synxronfiles/internal/domain"
	"synxronfiles/internal/metrics"
)

// CopyService копирование файлов к другому родителю
type CopyService struct {
	conf     Config
	repo     domain.FileRepository
	storage  domain.Storage
	scanner  domain.Scanner
	reporter domain.ErrorReporter
	logger   *slog.Logger
	now      func() time.Time
}

func NewCopyService(
	conf Config,
	repo domain.FileRepository,
	storage domain.Storage,
	scanner domain.Scanner,
	reporter domain.ErrorReporter,
	logger *slog.Logger,
) *CopyService {
	return &CopyService{
		conf:     conf,
		repo:     repo,
		storage:  storage,
		scanner:  scanner,
		reporter: reporter,
		logger:   logger.With(slog.String("component", "copy_service")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CopyFilesToParent копирует файлы параллельно. Ошибка одного файла не прерывает
// остальные: он получает результат без ID, а ошибка уходит в ErrorReporter.
// Порядок результатов совпадает с порядком sources.
func (s *CopyService) CopyFilesToParent(ctx context.Context, userID string, sources []*domain.FileRecord, target domain.ParentInfo) ([]domain.CopyResult, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("copy cancelled: %w", err)
	}

	results := make([]domain.CopyResult, len(sources))

	var g errgroup.Group
	g.SetLimit(s.conf.CopyConcurrency)
	for i, source := range sources {
		g.Go(func() error {
			results[i] = s.copyFile(ctx, userID, source, target)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	s.logger.InfoContext(ctx, "files copied",
		slog.String("target_parent_id", target.ParentID),
		slog.Int("total", len(results)),
		slog.Int("failed", failed),
	)

	return results, nil
}

func (s *CopyService) copyFile(ctx context.Context, userID string, source *domain.FileRecord, target domain.ParentInfo) domain.CopyResult {
	failed := domain.CopyResult{SourceID: source.ID, Name: source.Name}

	if source.IsBlocked() {
		metrics.CopiesTotal.WithLabelValues("blocked").Inc()
		return failed
	}

	copied := source.Copy(userID, target, s.now())
	if err := s.copyContent(ctx, source, copied); err != nil {
		metrics.CopiesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		if delErr := s.repo.Delete(context.WithoutCancel(ctx), copied); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to delete copied file record",
				slog.String("file_id", copied.ID.String()),
				slog.String("error", delErr.Error()),
			)
		}
		s.reporter.ReportError(ctx, err,
			slog.String("operation", "copy"),
			slog.String("source_id", source.ID.String()),
			slog.String("target_parent_id", target.ParentID),
		)
		return failed
	}

	metrics.CopiesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	id := copied.ID
	return domain.CopyResult{ID: &id, SourceID: source.ID, Name: copied.Name}
}

func (s *CopyService) copyContent(ctx context.Context, source, copied *domain.FileRecord) error {
	if err := s.repo.Save(ctx, copied); err != nil {
		return fmt.Errorf("failed to save copied file record: %w", err)
	}

	path := domain.CopyPath{SourcePath: source.StoragePath(), TargetPath: copied.StoragePath()}
	if err := s.storage.Copy(ctx, []domain.CopyPath{path}); err != nil {
		return fmt.Errorf("failed to copy file %s: %w", source.ID, err)
	}

	if copied.SecurityCheck.NeedsScan() {
		if err := s.scanner.Send(ctx, copied.SecurityCheck.RequestToken); err != nil {
			if delErr := s.storage.Delete(context.WithoutCancel(ctx), []string{path.TargetPath}); delErr != nil {
				s.logger.ErrorContext(ctx, "failed to delete copied file content",
					slog.String("path", path.TargetPath),
					slog.String("error", delErr.Error()),
				)
			}
			return fmt.Errorf("failed to send copied file to security check: %w", err)
		}
		metrics.ScanSubmissionsTotal.WithLabelValues("async").Inc()
	}

	return nil
}
