package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"synxronfiles/internal/domain"
)

const fileColumns = `
	id, name, mime_type, size_in_bytes, parent_id, parent_type,
	storage_location, storage_location_id, creator_id, is_uploading,
	preview_generation_failed, deleted_since, created_at, updated_at,
	content_last_modified_at, security_check_status, security_check_reason,
	security_check_request_token, security_check_updated_at`

var _ domain.FileRepository = (*FileRepository)(nil)

type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

// fileRow строка таблицы files
type fileRow struct {
	ID                        uuid.UUID      `db:"id"`
	Name                      string         `db:"name"`
	MimeType                  string         `db:"mime_type"`
	SizeInBytes               int64          `db:"size_in_bytes"`
	ParentID                  string         `db:"parent_id"`
	ParentType                string         `db:"parent_type"`
	StorageLocation           string         `db:"storage_location"`
	StorageLocationID         string         `db:"storage_location_id"`
	CreatorID                 sql.NullString `db:"creator_id"`
	IsUploading               bool           `db:"is_uploading"`
	PreviewGenerationFailed   bool           `db:"preview_generation_failed"`
	DeletedSince              sql.NullTime   `db:"deleted_since"`
	CreatedAt                 time.Time      `db:"created_at"`
	UpdatedAt                 time.Time      `db:"updated_at"`
	ContentLastModifiedAt     sql.NullTime   `db:"content_last_modified_at"`
	SecurityCheckStatus       string         `db:"security_check_status"`
	SecurityCheckReason       string         `db:"security_check_reason"`
	SecurityCheckRequestToken sql.NullString `db:"security_check_request_token"`
	SecurityCheckUpdatedAt    time.Time      `db:"security_check_updated_at"`
}

func toRow(f *domain.FileRecord) fileRow {
	row := fileRow{
		ID:                      f.ID,
		Name:                    f.Name,
		MimeType:                f.MimeType,
		SizeInBytes:             f.SizeInBytes,
		ParentID:                f.ParentID,
		ParentType:              string(f.ParentType),
		StorageLocation:         string(f.StorageLocation),
		StorageLocationID:       f.StorageLocationID,
		IsUploading:             f.IsUploading,
		PreviewGenerationFailed: f.PreviewGenerationFailed,
		CreatedAt:               f.CreatedAt,
		UpdatedAt:               f.UpdatedAt,
		SecurityCheckStatus:     string(f.SecurityCheck.Status),
		SecurityCheckReason:     f.SecurityCheck.Reason,
		SecurityCheckUpdatedAt:  f.SecurityCheck.UpdatedAt,
	}
	if f.CreatorID != nil {
		row.CreatorID = sql.NullString{String: *f.CreatorID, Valid: true}
	}
	if f.DeletedSince != nil {
		row.DeletedSince = sql.NullTime{Time: *f.DeletedSince, Valid: true}
	}
	if f.ContentLastModifiedAt != nil {
		row.ContentLastModifiedAt = sql.NullTime{Time: *f.ContentLastModifiedAt, Valid: true}
	}
	if f.SecurityCheck.RequestToken != "" {
		row.SecurityCheckRequestToken = sql.NullString{String: f.SecurityCheck.RequestToken, Valid: true}
	}
	return row
}

func (r fileRow) toDomain() *domain.FileRecord {
	f := &domain.FileRecord{
		ID:                      r.ID,
		Name:                    r.Name,
		MimeType:                r.MimeType,
		SizeInBytes:             r.SizeInBytes,
		ParentID:                r.ParentID,
		ParentType:              domain.ParentType(r.ParentType),
		StorageLocation:         domain.StorageLocation(r.StorageLocation),
		StorageLocationID:       r.StorageLocationID,
		IsUploading:             r.IsUploading,
		PreviewGenerationFailed: r.PreviewGenerationFailed,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
		SecurityCheck: domain.SecurityCheck{
			Status:       domain.ScanStatus(r.SecurityCheckStatus),
			Reason:       r.SecurityCheckReason,
			RequestToken: r.SecurityCheckRequestToken.String,
			UpdatedAt:    r.SecurityCheckUpdatedAt,
		},
	}
	if r.CreatorID.Valid {
		creator := r.CreatorID.String
		f.CreatorID = &creator
	}
	if r.DeletedSince.Valid {
		deleted := r.DeletedSince.Time
		f.DeletedSince = &deleted
	}
	if r.ContentLastModifiedAt.Valid {
		modified := r.ContentLastModifiedAt.Time
		f.ContentLastModifiedAt = &modified
	}
	return f
}

func rowsToDomain(rows []fileRow) []*domain.FileRecord {
	records := make([]*domain.FileRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toDomain())
	}
	return records
}

func (r *FileRepository) FindOneByID(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error) {
	var row fileRow
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`

	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file record %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file record: %w", err)
	}

	return row.toDomain(), nil
}

func (r *FileRepository) FindMultipleByID(ctx context.Context, ids []uuid.UUID) ([]*domain.FileRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []fileRow
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = ANY($1::uuid[]) ORDER BY name`

	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(idStrings(ids))); err != nil {
		return nil, fmt.Errorf("failed to get file records: %w", err)
	}

	return rowsToDomain(rows), nil
}

func (r *FileRepository) FindByParentID(ctx context.Context, parentID string) ([]*domain.FileRecord, error) {
	var rows []fileRow
	query := `SELECT ` + fileColumns + ` FROM files WHERE parent_id = $1 AND deleted_since IS NULL ORDER BY name`

	if err := r.db.SelectContext(ctx, &rows, query, parentID); err != nil {
		return nil, fmt.Errorf("failed to get files of parent: %w", err)
	}

	return rowsToDomain(rows), nil
}

func (r *FileRepository) FindMarkedForDeleteByParentID(ctx context.Context, parentID string) ([]*domain.FileRecord, error) {
	var rows []fileRow
	query := `SELECT ` + fileColumns + ` FROM files WHERE parent_id = $1 AND deleted_since IS NOT NULL ORDER BY name`

	if err := r.db.SelectContext(ctx, &rows, query, parentID); err != nil {
		return nil, fmt.Errorf("failed to get deleted files of parent: %w", err)
	}

	return rowsToDomain(rows), nil
}

func (r *FileRepository) FindByCreatorID(ctx context.Context, creatorID string) ([]*domain.FileRecord, error) {
	var rows []fileRow
	query := `SELECT ` + fileColumns + ` FROM files WHERE creator_id = $1 AND deleted_since IS NULL ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &rows, query, creatorID); err != nil {
		return nil, fmt.Errorf("failed to get files of creator: %w", err)
	}

	return rowsToDomain(rows), nil
}

func (r *FileRepository) FindBySecurityCheckRequestToken(ctx context.Context, token string) (*domain.FileRecord, error) {
	var row fileRow
	query := `SELECT ` + fileColumns + ` FROM files WHERE security_check_request_token = $1`

	err := r.db.GetContext(ctx, &row, query, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file record with request token %s: %w", token, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file record by request token: %w", err)
	}

	return row.toDomain(), nil
}

// MarkForDeleteByStorageLocation помечает удаленными все файлы арендатора
func (r *FileRepository) MarkForDeleteByStorageLocation(
	ctx context.Context,
	location domain.StorageLocation,
	storageLocationID string,
) (int, error) {
	query := `
        UPDATE files
        SET deleted_since = CURRENT_TIMESTAMP,
            updated_at = CURRENT_TIMESTAMP
        WHERE storage_location = $1
          AND storage_location_id = $2
          AND deleted_since IS NULL`

	res, err := r.db.ExecContext(ctx, query, string(location), storageLocationID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark files for delete: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return int(affected), nil
}

// Save вставляет или обновляет записи в одной транзакции
func (r *FileRepository) Save(ctx context.Context, records ...*domain.FileRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO files (` + fileColumns + `)
        VALUES (
            :id, :name, :mime_type, :size_in_bytes, :parent_id, :parent_type,
            :storage_location, :storage_location_id, :creator_id, :is_uploading,
            :preview_generation_failed, :deleted_since, :created_at, :updated_at,
            :content_last_modified_at, :security_check_status, :security_check_reason,
            :security_check_request_token, :security_check_updated_at
        )
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            mime_type = EXCLUDED.mime_type,
            size_in_bytes = EXCLUDED.size_in_bytes,
            parent_id = EXCLUDED.parent_id,
            parent_type = EXCLUDED.parent_type,
            storage_location = EXCLUDED.storage_location,
            storage_location_id = EXCLUDED.storage_location_id,
            creator_id = EXCLUDED.creator_id,
            is_uploading = EXCLUDED.is_uploading,
            preview_generation_failed = EXCLUDED.preview_generation_failed,
            deleted_since = EXCLUDED.deleted_since,
            updated_at = EXCLUDED.updated_at,
            content_last_modified_at = EXCLUDED.content_last_modified_at,
            security_check_status = EXCLUDED.security_check_status,
            security_check_reason = EXCLUDED.security_check_reason,
            security_check_request_token = EXCLUDED.security_check_request_token,
            security_check_updated_at = EXCLUDED.security_check_updated_at`

	for _, record := range records {
		if _, err := tx.NamedExecContext(ctx, query, toRow(record)); err != nil {
			return fmt.Errorf("failed to save file record %s: %w", record.ID, err)
		}
	}

	return tx.Commit()
}

// Delete удаляет записи физически. Используется только для отката загрузки и копирования.
func (r *FileRepository) Delete(ctx context.Context, records ...*domain.FileRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}

	_, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = ANY($1::uuid[])`, pq.Array(idStrings(ids)))
	if err != nil {
		return fmt.Errorf("failed to delete file records: %w", err)
	}

	return nil
}

func (r *FileRepository) GetStatisticByParentID(ctx context.Context, parentID string) (domain.FileStatistic, error) {
	var stat struct {
		FileCount        int   `db:"file_count"`
		TotalSizeInBytes int64 `db:"total_size_in_bytes"`
	}
	query := `
        SELECT COUNT(*) AS file_count,
               COALESCE(SUM(size_in_bytes), 0) AS total_size_in_bytes
        FROM files
        WHERE parent_id = $1 AND deleted_since IS NULL`

	if err := r.db.GetContext(ctx, &stat, query, parentID); err != nil {
		return domain.FileStatistic{}, fmt.Errorf("failed to get parent statistic: %w", err)
	}

	return domain.FileStatistic{FileCount: stat.FileCount, TotalSizeInBytes: stat.TotalSizeInBytes}, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
