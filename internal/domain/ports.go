package domain

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// FileRepository хранение метаданных файлов. Реализация должна быть безопасна
// для конкурентного использования.
type FileRepository interface {
	FindOneByID(ctx context.Context, id uuid.UUID) (*FileRecord, error)
	FindMultipleByID(ctx context.Context, ids []uuid.UUID) ([]*FileRecord, error)
	FindByParentID(ctx context.Context, parentID string) ([]*FileRecord, error)
	FindMarkedForDeleteByParentID(ctx context.Context, parentID string) ([]*FileRecord, error)
	FindByCreatorID(ctx context.Context, creatorID string) ([]*FileRecord, error)
	FindBySecurityCheckRequestToken(ctx context.Context, token string) (*FileRecord, error)
	MarkForDeleteByStorageLocation(ctx context.Context, location StorageLocation, storageLocationID string) (int, error)
	Save(ctx context.Context, records ...*FileRecord) error
	Delete(ctx context.Context, records ...*FileRecord) error
	GetStatisticByParentID(ctx context.Context, parentID string) (FileStatistic, error)
}

type CopyPath struct {
	SourcePath string
	TargetPath string
}

// ByteRange включительный диапазон байт. End < 0 означает до конца объекта.
type ByteRange struct {
	Start int64
	End   int64
}

// StoredObject поток объекта из хранилища. Вызывающий обязан закрыть Body.
type StoredObject struct {
	Body          io.ReadCloser
	ContentLength int64
	ContentType   string
	ContentRange  string
	ETag          string
}

// Storage объектное хранилище
type Storage interface {
	Create(ctx context.Context, path string, r io.Reader) error
	Get(ctx context.Context, path string, byteRange *ByteRange) (*StoredObject, error)
	Copy(ctx context.Context, paths []CopyPath) error
	Delete(ctx context.Context, paths []string) error
	MoveToTrash(ctx context.Context, paths []string) error
	Restore(ctx context.Context, paths []string) error
	MoveDirectoryToTrash(ctx context.Context, prefix string) error
}

// Scanner антивирус. ScanStream и CheckStream синхронные,
// Send отправляет асинхронную проверку по токену из SecurityCheck.
type Scanner interface {
	ScanStream(ctx context.Context, r io.Reader) (ScanResult, error)
	CheckStream(ctx context.Context, r io.Reader) (ScanResult, error)
	Send(ctx context.Context, requestToken string) error
}

// ErrorReporter канал для ошибок, которые не должны прерывать пакетную операцию
type ErrorReporter interface {
	ReportError(ctx context.Context, err error, attrs ...any)
}
