package domain

import (
	"time"

	"github.com/google/uuid"
)

type ParentType string

const (
	ParentTypeUsers         ParentType = "users"
	ParentTypeSchools       ParentType = "schools"
	ParentTypeCourses       ParentType = "courses"
	ParentTypeTasks         ParentType = "tasks"
	ParentTypeLessons       ParentType = "lessons"
	ParentTypeSubmissions   ParentType = "submissions"
	ParentTypeGrading       ParentType = "grading"
	ParentTypeBoardNodes    ParentType = "boardnodes"
	ParentTypeExternalTools ParentType = "externaltools"
)

func (p ParentType) Valid() bool {
	switch p {
	case ParentTypeUsers, ParentTypeSchools, ParentTypeCourses, ParentTypeTasks, ParentTypeLessons,
		ParentTypeSubmissions, ParentTypeGrading, ParentTypeBoardNodes, ParentTypeExternalTools:
		return true
	}
	return false
}

type StorageLocation string

const (
	StorageLocationSchool   StorageLocation = "school"
	StorageLocationInstance StorageLocation = "instance"
)

func (l StorageLocation) Valid() bool {
	return l == StorageLocationSchool || l == StorageLocationInstance
}

// ParentInfo адресует владельца файлов. Связь не управляется этим модулем,
// хранятся только идентификаторы.
type ParentInfo struct {
	StorageLocation   StorageLocation `json:"storage_location"`
	StorageLocationID string          `json:"storage_location_id"`
	ParentID          string          `json:"parent_id"`
	ParentType        ParentType      `json:"parent_type"`
}

func (p ParentInfo) Validate() error {
	if !p.StorageLocation.Valid() || p.StorageLocationID == "" || p.ParentID == "" || !p.ParentType.Valid() {
		return ErrInvalidParent
	}
	return nil
}

// FileRecord описывает один сохраненный файл и его родителя
type FileRecord struct {
	ID                      uuid.UUID       `json:"id"`
	Name                    string          `json:"name"`
	MimeType                string          `json:"mime_type"`
	SizeInBytes             int64           `json:"size_in_bytes"`
	ParentID                string          `json:"parent_id"`
	ParentType              ParentType      `json:"parent_type"`
	StorageLocation         StorageLocation `json:"storage_location"`
	StorageLocationID       string          `json:"storage_location_id"`
	CreatorID               *string         `json:"creator_id,omitempty"`
	IsUploading             bool            `json:"is_uploading,omitempty"`
	PreviewGenerationFailed bool            `json:"preview_generation_failed,omitempty"`
	DeletedSince            *time.Time      `json:"deleted_since,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
	ContentLastModifiedAt   *time.Time      `json:"content_last_modified_at,omitempty"`
	SecurityCheck           SecurityCheck   `json:"security_check"`
}

// NewFileRecord создает запись в состоянии загрузки. Размер до конца потока неизвестен.
func NewFileRecord(name, mimeType string, parent ParentInfo, creatorID string, now time.Time) *FileRecord {
	record := &FileRecord{
		ID:                uuid.New(),
		Name:              name,
		MimeType:          mimeType,
		ParentID:          parent.ParentID,
		ParentType:        parent.ParentType,
		StorageLocation:   parent.StorageLocation,
		StorageLocationID: parent.StorageLocationID,
		IsUploading:       true,
		CreatedAt:         now,
		UpdatedAt:         now,
		SecurityCheck:     NewSecurityCheck(now),
	}
	if creatorID != "" {
		record.CreatorID = &creatorID
	}
	return record
}

func (f *FileRecord) ParentInfo() ParentInfo {
	return ParentInfo{
		StorageLocation:   f.StorageLocation,
		StorageLocationID: f.StorageLocationID,
		ParentID:          f.ParentID,
		ParentType:        f.ParentType,
	}
}

// StoragePath путь объекта в хранилище: <storageLocationId>/<id>
func (f *FileRecord) StoragePath() string {
	return StoragePath(f.StorageLocationID, f.ID)
}

func StoragePath(storageLocationID string, id uuid.UUID) string {
	return storageLocationID + "/" + id.String()
}

func StoragePaths(records []*FileRecord) []string {
	paths := make([]string, 0, len(records))
	for _, r := range records {
		paths = append(paths, r.StoragePath())
	}
	return paths
}

func (f *FileRecord) MarkForDelete(now time.Time) {
	f.DeletedSince = &now
}

func (f *FileRecord) UnmarkForDelete() {
	f.DeletedSince = nil
}

func (f *FileRecord) IsMarkedForDelete() bool {
	return f.DeletedSince != nil
}

// StartUpload переводит существующую запись в состояние загрузки нового содержимого
func (f *FileRecord) StartUpload(now time.Time) {
	f.IsUploading = true
	f.PreviewGenerationFailed = false
	f.SecurityCheck = NewSecurityCheck(now)
	f.UpdatedAt = now
}

// MarkAsUploaded фиксирует размер после полного чтения потока.
// Файлы больше maxSecurityCheckSize не проверяются антивирусом.
func (f *FileRecord) MarkAsUploaded(size, maxSecurityCheckSize int64, now time.Time) {
	f.SizeInBytes = size
	f.IsUploading = false
	f.ContentLastModifiedAt = &now
	f.UpdatedAt = now
	if size > maxSecurityCheckSize {
		f.SecurityCheck.markWontCheck(now)
	}
}

func (f *FileRecord) SetName(name string, now time.Time) {
	f.Name = name
	f.UpdatedAt = now
}

func (f *FileRecord) MarkPreviewGenerationFailed(now time.Time) {
	f.PreviewGenerationFailed = true
	f.UpdatedAt = now
}

// UpdateSecurityCheckFromScanResult возвращает false, если статус уже окончательный
func (f *FileRecord) UpdateSecurityCheckFromScanResult(result ScanResult, now time.Time) bool {
	if !f.SecurityCheck.applyScanResult(result, now) {
		return false
	}
	f.UpdatedAt = now
	return true
}

// Copy создает копию записи для нового родителя.
// Статус VERIFIED наследуется, иначе начинается новая проверка.
func (f *FileRecord) Copy(creatorID string, target ParentInfo, now time.Time) *FileRecord {
	cp := NewFileRecord(f.Name, f.MimeType, target, creatorID, now)
	cp.SizeInBytes = f.SizeInBytes
	cp.IsUploading = false
	if f.ContentLastModifiedAt != nil {
		modified := *f.ContentLastModifiedAt
		cp.ContentLastModifiedAt = &modified
	}
	if f.SecurityCheck.Status == ScanStatusVerified {
		cp.SecurityCheck = f.SecurityCheck.copyVerified(now)
	}
	return cp
}

// CopyResult результат копирования одного файла. ID == nil означает неудачу.
type CopyResult struct {
	ID       *uuid.UUID `json:"id,omitempty"`
	SourceID uuid.UUID  `json:"source_id"`
	Name     string     `json:"name"`
}

func (r CopyResult) Failed() bool {
	return r.ID == nil
}

type FileStatistic struct {
	FileCount        int   `json:"file_count"`
	TotalSizeInBytes int64 `json:"total_size_in_bytes"`
}

type StorageLocationParams struct {
	StorageLocation   StorageLocation `json:"storage_location"`
	StorageLocationID string          `json:"storage_location_id"`
}
