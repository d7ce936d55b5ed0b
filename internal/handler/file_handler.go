package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"synxronfiles/internal/domain"
	"synxronfiles/internal/service"
)

const filePartName = "file"

// FileService операции с содержимым и метаданными файлов
type FileService interface {
	UploadFile(ctx context.Context, userID string, parent domain.ParentInfo, src service.SourceFile) (*domain.FileRecord, error)
	UpdateFileContents(ctx context.Context, record *domain.FileRecord, src service.SourceFile) (*domain.FileRecord, error)
	GetFileRecord(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error)
	GetFileRecords(ctx context.Context, ids []uuid.UUID) ([]*domain.FileRecord, error)
	GetFileRecordStatus(ctx context.Context, id uuid.UUID) (domain.FileRecordStatus, error)
	Download(ctx context.Context, record *domain.FileRecord, byteRange *domain.ByteRange) (*domain.StoredObject, error)
	RenameFile(ctx context.Context, id uuid.UUID, newName string) (*domain.FileRecord, error)
	GetParentStatistic(ctx context.Context, parentID string) (domain.FileStatistic, error)
	UpdateSecurityCheckStatus(ctx context.Context, token string, result domain.ScanResult) (*domain.FileRecord, error)
	RescanFile(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error)
	MarkPreviewGenerationFailed(ctx context.Context, id uuid.UUID) (*domain.FileRecord, error)
	FindFilesOfCreator(ctx context.Context, creatorID string) ([]*domain.FileRecord, error)
}

type CopyService interface {
	CopyFilesToParent(ctx context.Context, userID string, sources []*domain.FileRecord, target domain.ParentInfo) ([]domain.CopyResult, error)
}

type FileHandler struct {
	fileService FileService
	copyService CopyService
	logger      *slog.Logger
}

func NewFileHandler(fileService FileService, copyService CopyService, logger *slog.Logger) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		copyService: copyService,
		logger:      logger.With(slog.String("component", "file_handler")),
	}
}

type renameRequest struct {
	Name string `json:"name"`
}

// UploadFile принимает multipart запрос. Часть file передается в сервис потоком,
// без буферизации на диске.
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	parent, err := parentFromURL(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	part, err := filePart(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	defer part.Close()

	record, err := h.fileService.UploadFile(r.Context(), userID, parent, service.SourceFile{
		Name:     part.FileName(),
		MimeType: part.Header.Get("Content-Type"),
		Data:     part,
		Cancel:   r.Context().Done(),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (h *FileHandler) UpdateFileContents(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	record, err := h.fileService.GetFileRecord(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	part, err := filePart(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	defer part.Close()

	updated, err := h.fileService.UpdateFileContents(r.Context(), record, service.SourceFile{
		Name:     part.FileName(),
		MimeType: part.Header.Get("Content-Type"),
		Data:     part,
		Cancel:   r.Context().Done(),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	record, err := h.fileService.GetFileRecord(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *FileHandler) GetFileStatus(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	status, err := h.fileService.GetFileRecordStatus(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// DownloadFile отдает содержимое, поддерживает один диапазон Range
func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	record, err := h.fileService.GetFileRecord(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var byteRange *domain.ByteRange
	if header := r.Header.Get("Range"); header != "" {
		byteRange, err = parseRange(header, record.SizeInBytes)
		if err != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", record.SizeInBytes))
			http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
			return
		}
	}

	obj, err := h.fileService.Download(r.Context(), record, byteRange)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer obj.Body.Close()

	encodedName := url.PathEscape(record.Name)
	asciiName := strings.ReplaceAll(record.Name, `"`, `\"`)
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, asciiName, encodedName))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if obj.ETag != "" {
		w.Header().Set("ETag", obj.ETag)
	}

	status := http.StatusOK
	length := record.SizeInBytes
	if byteRange != nil {
		status = http.StatusPartialContent
		length = byteRange.End - byteRange.Start + 1
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", byteRange.Start, byteRange.End, record.SizeInBytes))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	written, err := io.Copy(w, obj.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "download interrupted",
			slog.String("file_id", id.String()),
			slog.Int64("written", written),
			slog.String("error", err.Error()),
		)
	}
}

func (h *FileHandler) RenameFile(w http.ResponseWriter, r *http.Request) {
	id, err := fileID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	record, err := h.fileService.RenameFile(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *FileHandler) CopyFiles(w http.ResponseWriter, r *http.Request) {
	userID, err := userID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	target, err := parentFromURL(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	ids, err := decodeIDs(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	sources, err := h.fileService.GetFileRecords(r.Context(), ids)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	results, err := h.copyService.CopyFilesToParent(r.Context(), userID, sources, target)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, listResponse[domain.CopyResult]{Data: results, Total: len(results)})
}

func (h *FileHandler) GetParentStatistic(w http.ResponseWriter, r *http.Request) {
	stat, err := h.fileService.GetParentStatistic(r.Context(), chi.URLParam(r, "parentId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, stat)
}

// UpdateSecurityCheck колбэк антивируса с результатом асинхронной проверки
func (h *FileHandler) UpdateSecurityCheck(w http.ResponseWriter, r *http.Request) {
	var result domain.ScanResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	record, err := h.fileService.UpdateSecurityCheckStatus(r.Context(), chi.URLParam(r, "token"), result)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, record.Status())
}

// RescanFile повторная синхронная проверка сохраненного содержимого
func (h *FileHandler) RescanFile(w http.ResponseWriter, r *http.Request) {
	h.updateRecord(w, r, h.fileService.RescanFile)
}

// MarkPreviewGenerationFailed вызывается сервисом превью
func (h *FileHandler) MarkPreviewGenerationFailed(w http.ResponseWriter, r *http.Request) {
	h.updateRecord(w, r, h.fileService.MarkPreviewGenerationFailed)
}

func (h *FileHandler) updateRecord(w http.ResponseWriter, r *http.Request, update func(context.Context, uuid.UUID) (*domain.FileRecord, error)) {
	id, err := fileID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	record, err := update(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *FileHandler) GetFilesOfCreator(w http.ResponseWriter, r *http.Request) {
	records, err := h.fileService.FindFilesOfCreator(r.Context(), chi.URLParam(r, "creatorId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse[*domain.FileRecord]{Data: records, Total: len(records)})
}

// filePart находит часть file в multipart теле
func filePart(r *http.Request) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart request: %w", err)
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("multipart field %q is missing", filePartName)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid multipart request: %w", err)
		}
		if part.FormName() == filePartName && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}
