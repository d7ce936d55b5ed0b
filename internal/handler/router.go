package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"synxronfiles/internal/metrics"
)

// NewRouter собирает HTTP маршруты сервиса
func NewRouter(files *FileHandler, trash *TrashHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Range", userIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Range", "Accept-Ranges"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/files", func(r chi.Router) {
			r.Post("/upload/{storageLocation}/{storageLocationId}/{parentType}/{parentId}", files.UploadFile)
			r.Post("/copy/{storageLocation}/{storageLocationId}/{parentType}/{parentId}", files.CopyFiles)
			r.Post("/delete", trash.DeleteFiles)
			r.Post("/restore", trash.RestoreFiles)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", files.GetFile)
				r.Get("/status", files.GetFileStatus)
				r.Get("/download", files.DownloadFile)
				r.Put("/contents", files.UpdateFileContents)
				r.Patch("/name", files.RenameFile)
				r.Post("/rescan", files.RescanFile)
				r.Post("/preview-generation-failed", files.MarkPreviewGenerationFailed)
			})
		})

		r.Route("/parents/{parentId}", func(r chi.Router) {
			r.Get("/statistic", files.GetParentStatistic)
			r.Delete("/files", trash.DeleteFilesOfParent)
			r.Post("/files/restore", trash.RestoreFilesOfParent)
		})

		r.Get("/creators/{creatorId}/files", files.GetFilesOfCreator)
		r.Delete("/storage-locations/{storageLocation}/{storageLocationId}", trash.DeleteStorageLocation)
		r.Post("/security-checks/{token}", files.UpdateSecurityCheck)
	})

	return r
}

// requestLogger пишет одну запись slog на запрос
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
