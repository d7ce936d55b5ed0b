package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"synxronfiles/internal/domain"
)

const userIDHeader = "X-User-Id"

var errMissingUser = errors.New("missing " + userIDHeader + " header")

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type idsRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

type listResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus переводит доменные ошибки в HTTP статусы
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrFileUploading):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrFileTooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrBlocked):
		return http.StatusNotAcceptable
	case errors.Is(err, domain.ErrFileNameExists), errors.Is(err, domain.ErrScanNotAllowed):
		return http.StatusConflict
	case domain.IsValidation(err), errors.Is(err, errMissingUser):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := errorStatus(err)

	resp := errorResponse{Error: http.StatusText(status), Message: err.Error()}
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		resp.Message = ""
	}

	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: http.StatusText(http.StatusBadRequest), Message: message})
}

func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(userIDHeader))
	if id == "" {
		return "", errMissingUser
	}
	return id, nil
}

func fileID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid file id: %w", err)
	}
	return id, nil
}

func parentFromURL(r *http.Request) (domain.ParentInfo, error) {
	parent := domain.ParentInfo{
		StorageLocation:   domain.StorageLocation(chi.URLParam(r, "storageLocation")),
		StorageLocationID: chi.URLParam(r, "storageLocationId"),
		ParentType:        domain.ParentType(chi.URLParam(r, "parentType")),
		ParentID:          chi.URLParam(r, "parentId"),
	}
	if err := parent.Validate(); err != nil {
		return domain.ParentInfo{}, err
	}
	return parent, nil
}

func decodeIDs(r *http.Request) ([]uuid.UUID, error) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if len(req.IDs) == 0 {
		return nil, errors.New("ids must not be empty")
	}
	return req.IDs, nil
}

// parseRange разбирает заголовок Range. Поддерживается только один диапазон.
func parseRange(header string, size int64) (*domain.ByteRange, error) {
	if !strings.HasPrefix(header, "bytes=") {
		return nil, fmt.Errorf("invalid range format")
	}

	value := strings.TrimSpace(strings.TrimPrefix(header, "bytes="))
	if strings.Contains(value, ",") {
		return nil, fmt.Errorf("multiple ranges not supported")
	}

	parts := strings.SplitN(value, "-", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid range format")
	}

	var start, end int64
	var err error

	if parts[0] == "" {
		// суффикс: последние N байт
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid range format")
		}
		if n > size {
			n = size
		}
		start = size - n
		end = size - 1
	} else {
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid range format")
		}
		if parts[1] == "" {
			end = size - 1
		} else {
			end, err = strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid range format")
			}
			if end >= size {
				end = size - 1
			}
		}
	}

	if start < 0 || start > end || start >= size {
		return nil, fmt.Errorf("invalid range values")
	}

	return &domain.ByteRange{Start: start, End: end}, nil
}
