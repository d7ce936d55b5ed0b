package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"synxronfiles/internal/domain"
)

// DeleteService мягкое удаление и восстановление
type DeleteService interface {
	DeleteFiles(ctx context.Context, records []*domain.FileRecord) error
	RestoreFiles(ctx context.Context, records []*domain.FileRecord) error
	DeleteFilesOfParent(ctx context.Context, parentID string) ([]*domain.FileRecord, int, error)
	RestoreFilesOfParent(ctx context.Context, parentID string) ([]*domain.FileRecord, int, error)
	DeleteStorageLocationWithAllFiles(ctx context.Context, params domain.StorageLocationParams) (int, error)
}

// RecordFinder загрузка записей по идентификаторам
type RecordFinder interface {
	GetFileRecords(ctx context.Context, ids []uuid.UUID) ([]*domain.FileRecord, error)
}

type TrashHandler struct {
	finder        RecordFinder
	deleteService DeleteService
	logger        *slog.Logger
}

func NewTrashHandler(finder RecordFinder, deleteService DeleteService, logger *slog.Logger) *TrashHandler {
	return &TrashHandler{
		finder:        finder,
		deleteService: deleteService,
		logger:        logger.With(slog.String("component", "trash_handler")),
	}
}

type storageLocationResponse struct {
	StorageLocationID string `json:"storage_location_id"`
	MarkedFiles       int    `json:"marked_files"`
}

// DeleteFiles перемещает перечисленные файлы в корзину
func (h *TrashHandler) DeleteFiles(w http.ResponseWriter, r *http.Request) {
	h.changeFiles(w, r, h.deleteService.DeleteFiles)
}

// RestoreFiles восстанавливает перечисленные файлы из корзины
func (h *TrashHandler) RestoreFiles(w http.ResponseWriter, r *http.Request) {
	h.changeFiles(w, r, h.deleteService.RestoreFiles)
}

func (h *TrashHandler) changeFiles(w http.ResponseWriter, r *http.Request, change func(context.Context, []*domain.FileRecord) error) {
	ids, err := decodeIDs(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	records, err := h.finder.GetFileRecords(r.Context(), ids)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := change(r.Context(), records); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse[*domain.FileRecord]{Data: records, Total: len(records)})
}

func (h *TrashHandler) DeleteFilesOfParent(w http.ResponseWriter, r *http.Request) {
	records, total, err := h.deleteService.DeleteFilesOfParent(r.Context(), chi.URLParam(r, "parentId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse[*domain.FileRecord]{Data: records, Total: total})
}

func (h *TrashHandler) RestoreFilesOfParent(w http.ResponseWriter, r *http.Request) {
	records, total, err := h.deleteService.RestoreFilesOfParent(r.Context(), chi.URLParam(r, "parentId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse[*domain.FileRecord]{Data: records, Total: total})
}

// DeleteStorageLocation помечает все файлы области удаленными.
// Перенос содержимого в корзину идет в фоне, поэтому ответ 202.
func (h *TrashHandler) DeleteStorageLocation(w http.ResponseWriter, r *http.Request) {
	params := domain.StorageLocationParams{
		StorageLocation:   domain.StorageLocation(chi.URLParam(r, "storageLocation")),
		StorageLocationID: chi.URLParam(r, "storageLocationId"),
	}

	count, err := h.deleteService.DeleteStorageLocationWithAllFiles(r.Context(), params)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, storageLocationResponse{
		StorageLocationID: params.StorageLocationID,
		MarkedFiles:       count,
	})
}
