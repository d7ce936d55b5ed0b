package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"synxronfiles/internal/domain"
	"synxronfiles/internal/metrics"
)

// DeleteService мягкое удаление и восстановление файлов.
// Сначала меняются метаданные, потом хранилище. Ошибка хранилища
// возвращает метаданные в прежнее состояние.
type DeleteService struct {
	repo     domain.FileRepository
	storage  domain.Storage
	reporter domain.ErrorReporter
	logger   *slog.Logger
	now      func() time.Time

	background sync.WaitGroup
}

func NewDeleteService(
	repo domain.FileRepository,
	storage domain.Storage,
	reporter domain.ErrorReporter,
	logger *slog.Logger,
) *DeleteService {
	return &DeleteService{
		repo:     repo,
		storage:  storage,
		reporter: reporter,
		logger:   logger.With(slog.String("component", "delete_service")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *DeleteService) DeleteFiles(ctx context.Context, records []*domain.FileRecord) error {
	if len(records) == 0 {
		return nil
	}

	previous := deletedSince(records)
	now := s.now()
	for _, r := range records {
		r.MarkForDelete(now)
	}

	if err := s.repo.Save(ctx, records...); err != nil {
		restoreDeletedSince(records, previous)
		return fmt.Errorf("failed to mark files for delete: %w", err)
	}

	if err := s.storage.MoveToTrash(ctx, domain.StoragePaths(records)); err != nil {
		restoreDeletedSince(records, previous)
		s.revert(ctx, "delete", records)
		return fmt.Errorf("failed to move files to trash: %w", err)
	}

	s.logger.InfoContext(ctx, "files deleted", slog.Int("count", len(records)))
	return nil
}

func (s *DeleteService) RestoreFiles(ctx context.Context, records []*domain.FileRecord) error {
	if len(records) == 0 {
		return nil
	}

	previous := deletedSince(records)
	for _, r := range records {
		r.UnmarkForDelete()
	}

	if err := s.repo.Save(ctx, records...); err != nil {
		restoreDeletedSince(records, previous)
		return fmt.Errorf("failed to unmark files for delete: %w", err)
	}

	if err := s.storage.Restore(ctx, domain.StoragePaths(records)); err != nil {
		restoreDeletedSince(records, previous)
		s.revert(ctx, "restore", records)
		return fmt.Errorf("failed to restore files from trash: %w", err)
	}

	s.logger.InfoContext(ctx, "files restored", slog.Int("count", len(records)))
	return nil
}

func (s *DeleteService) DeleteFilesOfParent(ctx context.Context, parentID string) ([]*domain.FileRecord, int, error) {
	records, err := s.repo.FindByParentID(ctx, parentID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get files of parent: %w", err)
	}

	if err := s.DeleteFiles(ctx, records); err != nil {
		return nil, 0, err
	}
	return records, len(records), nil
}

func (s *DeleteService) RestoreFilesOfParent(ctx context.Context, parentID string) ([]*domain.FileRecord, int, error) {
	records, err := s.repo.FindMarkedForDeleteByParentID(ctx, parentID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get deleted files of parent: %w", err)
	}

	if err := s.RestoreFiles(ctx, records); err != nil {
		return nil, 0, err
	}
	return records, len(records), nil
}

// DeleteStorageLocationWithAllFiles помечает все файлы области удаленными и
// в фоне переносит каталог в корзину. Ошибка переноса только передается
// в ErrorReporter, метаданные не откатываются и требуют ручной сверки.
func (s *DeleteService) DeleteStorageLocationWithAllFiles(ctx context.Context, params domain.StorageLocationParams) (int, error) {
	if !params.StorageLocation.Valid() || params.StorageLocationID == "" {
		return 0, domain.ErrInvalidParent
	}

	count, err := s.repo.MarkForDeleteByStorageLocation(ctx, params.StorageLocation, params.StorageLocationID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark files of storage location for delete: %w", err)
	}

	bctx := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()

		if err := s.storage.MoveDirectoryToTrash(bctx, params.StorageLocationID); err != nil {
			s.reporter.ReportError(bctx, fmt.Errorf("failed to move storage location to trash: %w", err),
				slog.String("storage_location", string(params.StorageLocation)),
				slog.String("storage_location_id", params.StorageLocationID),
				slog.Int("marked_files", count),
			)
			return
		}
		s.logger.InfoContext(bctx, "storage location moved to trash",
			slog.String("storage_location_id", params.StorageLocationID),
			slog.Int("files", count),
		)
	}()

	return count, nil
}

// Wait ждет завершения фоновых переносов в корзину
func (s *DeleteService) Wait() {
	s.background.Wait()
}

// revert сохраняет записи после отката изменений в памяти.
// Ошибка сохранения только логируется.
func (s *DeleteService) revert(ctx context.Context, operation string, records []*domain.FileRecord) {
	metrics.RollbacksTotal.WithLabelValues(operation).Inc()

	if err := s.repo.Save(context.WithoutCancel(ctx), records...); err != nil {
		s.logger.ErrorContext(ctx, "failed to revert file records",
			slog.String("operation", operation),
			slog.Int("count", len(records)),
			slog.String("error", err.Error()),
		)
	}
}

func deletedSince(records []*domain.FileRecord) []*time.Time {
	values := make([]*time.Time, len(records))
	for i, r := range records {
		values[i] = r.DeletedSince
	}
	return values
}

func restoreDeletedSince(records []*domain.FileRecord, values []*time.Time) {
	for i, r := range records {
		r.DeletedSince = values[i]
	}
}
