package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"synxronfiles/internal/detect"
	"synxronfiles/internal/domain"
	"synxronfiles/internal/metrics"
	"synxronfiles/internal/stream"
)

const defaultMimeType = "application/octet-stream"

// Операции для метрик и логов
const (
	operationUpload = "upload"
	operationUpdate = "update"
)

// Ветки исходного потока
const (
	branchDetect = iota
	branchObserve
	branchStore
	branchCount
)

// SourceFile входящий файл. Cancel (может быть nil) сигнализирует,
// что клиент прервал передачу.
type SourceFile struct {
	Name     string
	MimeType string
	Data     io.Reader
	Cancel   <-chan struct{}
}

// FileService загрузка и обновление содержимого файлов
type FileService struct {
	conf    Config
	repo    domain.FileRepository
	storage domain.Storage
	scanner domain.Scanner
	logger  *slog.Logger
	now     func() time.Time
}

func NewFileService(
	conf Config,
	repo domain.FileRepository,
	storage domain.Storage,
	scanner domain.Scanner,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		conf:    conf,
		repo:    repo,
		storage: storage,
		scanner: scanner,
		logger:  logger.With(slog.String("component", "file_service")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// UploadFile сохраняет новый файл у родителя. При любой ошибке после
// создания записи удаляются и запись, и содержимое.
func (s *FileService) UploadFile(ctx context.Context, userID string, parent domain.ParentInfo, src SourceFile) (record *domain.FileRecord, err error) {
	defer func() {
		metrics.UploadsTotal.WithLabelValues(operationUpload, metrics.Result(err)).Inc()
	}()

	if err := parent.Validate(); err != nil {
		return nil, err
	}
	if err := validateFileName(src.Name); err != nil {
		return nil, err
	}

	siblings, err := s.repo.FindByParentID(ctx, parent.ParentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get files of parent: %w", err)
	}
	name := uniqueFileName(src.Name, siblings)

	pipeCtx, cancelPipe := context.WithCancel(ctx)
	defer cancelPipe()

	branches := stream.Duplicate(pipeCtx, src.Data, branchCount)
	defer closeBranches(branches)

	declared := src.MimeType
	if declared == "" {
		declared = defaultMimeType
	}
	mimeType, err := s.resolveMimeType(branches[branchDetect], declared)
	if err != nil {
		return nil, err
	}

	record = domain.NewFileRecord(name, mimeType, parent, userID, s.now())
	if err := s.repo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save file record: %w", err)
	}

	if err := s.storeAndScan(ctx, cancelPipe, record, branches, src.Cancel); err != nil {
		s.rollback(ctx, operationUpload, record, err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "file uploaded",
		slog.String("file_id", record.ID.String()),
		slog.String("parent_id", record.ParentID),
		slog.Int64("size", record.SizeInBytes),
		slog.String("scan_status", string(record.SecurityCheck.Status)),
	)

	return record, nil
}

// UpdateFileContents заменяет содержимое файла. Тип содержимого не может меняться.
func (s *FileService) UpdateFileContents(ctx context.Context, record *domain.FileRecord, src SourceFile) (_ *domain.FileRecord, err error) {
	defer func() {
		metrics.UploadsTotal.WithLabelValues(operationUpdate, metrics.Result(err)).Inc()
	}()

	pipeCtx, cancelPipe := context.WithCancel(ctx)
	defer cancelPipe()

	branches := stream.Duplicate(pipeCtx, src.Data, branchCount)
	defer closeBranches(branches)

	mimeType, err := s.resolveMimeType(branches[branchDetect], record.MimeType)
	if err != nil {
		return nil, err
	}
	if mimeType != record.MimeType {
		return nil, fmt.Errorf("%w: expected %s, got %s", domain.ErrMimeTypeMismatch, record.MimeType, mimeType)
	}

	record.StartUpload(s.now())
	if err := s.repo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save file record: %w", err)
	}

	if err := s.storeAndScan(ctx, cancelPipe, record, branches, src.Cancel); err != nil {
		s.rollback(ctx, operationUpdate, record, err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "file contents updated",
		slog.String("file_id", record.ID.String()),
		slog.Int64("size", record.SizeInBytes),
	)

	return record, nil
}

func (s *FileService) resolveMimeType(branch *stream.Branch, fallback string) (string, error) {
	defer branch.Close()

	mimeType, err := detect.ResolveMimeType(branch, fallback)
	if err != nil {
		return "", fmt.Errorf("failed to read file content: %w", err)
	}
	return mimeType, nil
}

// storeAndScan пишет содержимое в хранилище и определяет размер.
// Потоковая проверка антивирусом идет параллельно с записью,
// иначе после сохранения файл отправляется на асинхронную проверку.
func (s *FileService) storeAndScan(
	ctx context.Context,
	cancelPipe context.CancelFunc,
	record *domain.FileRecord,
	branches []*stream.Branch,
	cancel <-chan struct{},
) error {
	observeBranch, storeBranch := branches[branchObserve], branches[branchStore]

	counter := stream.NewCounter(observeBranch)
	observed := stream.Watch(counter, cancel)
	scanInline := s.conf.UseStreamToAntivirus && record.IsStreamScannable()

	var (
		scanResult domain.ScanResult
		storeErr   error
		observeErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer storeBranch.Close()

		if err := s.storage.Create(gctx, record.StoragePath(), storeBranch); err != nil {
			cancelPipe()
			storeErr = fmt.Errorf("failed to store file content: %w", err)
		}
		return storeErr
	})
	g.Go(func() error {
		defer observeBranch.Close()

		if scanInline {
			result, err := s.scanner.CheckStream(gctx, observed)
			if err != nil {
				cancelPipe()
				observeErr = fmt.Errorf("failed to check file content: %w", err)
				return observeErr
			}
			scanResult = result
			metrics.ScanSubmissionsTotal.WithLabelValues("stream").Inc()
		}

		// остаток потока нужен для подсчета размера
		if _, err := io.Copy(io.Discard, observed); err != nil {
			cancelPipe()
			observeErr = fmt.Errorf("failed to read file content: %w", err)
		}
		return observeErr
	})

	if err := g.Wait(); err != nil {
		return rootCause(storeErr, observeErr)
	}

	// К этому моменту ветка наблюдения дочитана, и ячейка уже закрыта концом
	// потока или сигналом Cancel. Cancel только закрывает ячейку и не прерывает
	// загрузку: обрыв запроса отменяет ctx, а с ним и весь конвейер.
	if err := observed.Completion().Wait(ctx); err != nil {
		return fmt.Errorf("failed to read file content: %w", err)
	}

	size := counter.Size()
	if size < 0 {
		return domain.ErrFileEmpty
	}
	if size > s.conf.MaxFileSize {
		return fmt.Errorf("%w: %d bytes, limit %d", domain.ErrFileTooBig, size, s.conf.MaxFileSize)
	}

	now := s.now()
	record.MarkAsUploaded(size, s.conf.MaxSecurityCheckFileSize, now)
	if scanInline && record.IsPending() {
		record.UpdateSecurityCheckFromScanResult(scanResult, now)
	}

	if err := s.repo.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to save file record: %w", err)
	}

	if !scanInline && record.IsPending() {
		if err := s.scanner.Send(ctx, record.SecurityCheck.RequestToken); err != nil {
			return fmt.Errorf("failed to send file to security check: %w", err)
		}
		metrics.ScanSubmissionsTotal.WithLabelValues("async").Inc()
	}

	metrics.UploadBytes.Observe(float64(size))
	return nil
}

// rollback удаляет содержимое и запись. Ошибки отката только логируются,
// вызывающий получает исходную ошибку.
func (s *FileService) rollback(ctx context.Context, operation string, record *domain.FileRecord, cause error) {
	metrics.RollbacksTotal.WithLabelValues(operation).Inc()

	// откат выполняется даже если клиент отключился
	ctx = context.WithoutCancel(ctx)
	logger := s.logger.With(
		slog.String("operation", operation),
		slog.String("file_id", record.ID.String()),
	)
	logger.WarnContext(ctx, "rolling back file", slog.String("cause", cause.Error()))

	if err := s.storage.Delete(ctx, []string{record.StoragePath()}); err != nil {
		logger.ErrorContext(ctx, "failed to delete file content during rollback", slog.String("error", err.Error()))
	}
	if err := s.repo.Delete(ctx, record); err != nil {
		logger.ErrorContext(ctx, "failed to delete file record during rollback", slog.String("error", err.Error()))
	}
}

// rootCause предпочитает ошибку, которая не является следствием отмены
// второй ветки
func rootCause(errs ...error) error {
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func closeBranches(branches []*stream.Branch) {
	for _, b := range branches {
		_ = b.Close()
	}
}

func (s *FileService) GetFileRecord(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error) {
	record, err := s.repo.FindOneByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get file record %s: %w", id, err)
	}
	return record, nil
}

func (s *FileService) GetFileRecords(ctx context.Context, ids []uuid.UUID) ([]*domain.FileRecord, error) {
	records, err := s.repo.FindMultipleByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get file records: %w", err)
	}
	return records, nil
}

func (s *FileService) GetFileRecordStatus(ctx context.Context, id uuid.UUID) (domain.FileRecordStatus, error) {
	record, err := s.GetFileRecord(ctx, id)
	if err != nil {
		return domain.FileRecordStatus{}, err
	}
	return record.Status(), nil
}

// Download отдает содержимое файла. Заблокированные и незагруженные файлы не отдаются.
func (s *FileService) Download(ctx context.Context, record *domain.FileRecord, byteRange *domain.ByteRange) (*domain.StoredObject, error) {
	if record.IsBlocked() {
		return nil, domain.ErrBlocked
	}
	if record.IsUploading {
		return nil, domain.ErrFileUploading
	}

	obj, err := s.storage.Get(ctx, record.StoragePath(), byteRange)
	if err != nil {
		return nil, fmt.Errorf("failed to get file content: %w", err)
	}
	if obj.ContentType == "" || obj.ContentType == defaultMimeType {
		obj.ContentType = record.MimeType
	}
	return obj, nil
}

func (s *FileService) RenameFile(ctx context.Context, id uuid.UUID, newName string) (*domain.FileRecord, error) {
	if err := validateFileName(newName); err != nil {
		return nil, err
	}

	record, err := s.GetFileRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	siblings, err := s.repo.FindByParentID(ctx, record.ParentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get files of parent: %w", err)
	}
	for _, sibling := range siblings {
		if sibling.ID != record.ID && sibling.Name == newName {
			return nil, fmt.Errorf("%w: %s", domain.ErrFileNameExists, newName)
		}
	}

	record.SetName(newName, s.now())
	if err := s.repo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save file record: %w", err)
	}
	return record, nil
}

func (s *FileService) GetParentStatistic(ctx context.Context, parentID string) (domain.FileStatistic, error) {
	stat, err := s.repo.GetStatisticByParentID(ctx, parentID)
	if err != nil {
		return domain.FileStatistic{}, fmt.Errorf("failed to get statistic of parent %s: %w", parentID, err)
	}
	return stat, nil
}

func (s *FileService) FindFilesOfCreator(ctx context.Context, creatorID string) ([]*domain.FileRecord, error) {
	records, err := s.repo.FindByCreatorID(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get files of creator: %w", err)
	}
	return records, nil
}

// UpdateSecurityCheckStatus применяет результат асинхронной проверки
func (s *FileService) UpdateSecurityCheckStatus(ctx context.Context, token string, result domain.ScanResult) (*domain.FileRecord, error) {
	record, err := s.repo.FindBySecurityCheckRequestToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get file record by scan token: %w", err)
	}

	if !record.UpdateSecurityCheckFromScanResult(result, s.now()) {
		s.logger.WarnContext(ctx, "scan result ignored for final security check status",
			slog.String("file_id", record.ID.String()),
			slog.String("scan_status", string(record.SecurityCheck.Status)),
		)
		return record, nil
	}
	if err := s.repo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save file record: %w", err)
	}

	if record.IsBlocked() {
		s.logger.WarnContext(ctx, "file blocked by security check",
			slog.String("file_id", record.ID.String()),
			slog.String("reason", record.SecurityCheck.Reason),
		)
	}
	return record, nil
}

// RescanFile синхронно проверяет уже сохраненное содержимое.
// Допускается только для записей в PENDING или ERROR.
func (s *FileService) RescanFile(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error) {
	record, err := s.GetFileRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.IsUploading {
		return nil, domain.ErrFileUploading
	}
	if !record.SecurityCheck.NeedsScan() {
		return nil, fmt.Errorf("%w: %s", domain.ErrScanNotAllowed, record.SecurityCheck.Status)
	}

	obj, err := s.storage.Get(ctx, record.StoragePath(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get file content: %w", err)
	}
	defer obj.Body.Close()

	result, err := s.scanner.ScanStream(ctx, obj.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to scan file content: %w", err)
	}
	metrics.ScanSubmissionsTotal.WithLabelValues("rescan").Inc()

	record.UpdateSecurityCheckFromScanResult(result, s.now())
	if err := s.repo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save file record: %w", err)
	}
	return record, nil
}

func (s *FileService) MarkPreviewGenerationFailed(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error) {
	record, err := s.GetFileRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	record.MarkPreviewGenerationFailed(s.now())
	if err := s.repo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save file record: %w", err)
	}
	return record, nil
}
