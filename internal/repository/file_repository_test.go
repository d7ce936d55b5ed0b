package repository

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"synxronfiles/internal/domain"
)

// setupTestDB запускает PostgreSQL в контейнере и применяет миграции
func setupTestDB(t *testing.T) *FileRepository {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		postgres.WithDatabase("files_test"),
		postgres.WithUsername("files"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	require.NoError(t, Migrate(url, logger))

	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewFileRepository(db)
}

func testParent(parentID string) domain.ParentInfo {
	return domain.ParentInfo{
		StorageLocation:   domain.StorageLocationSchool,
		StorageLocationID: "school-1",
		ParentID:          parentID,
		ParentType:        domain.ParentTypeCourses,
	}
}

func TestFileRepository_SaveAndFind(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	record := domain.NewFileRecord("report.pdf", "application/pdf", testParent("course-1"), "user-1", now)
	require.NoError(t, repo.Save(ctx, record))

	found, err := repo.FindOneByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Name, found.Name)
	assert.Equal(t, record.MimeType, found.MimeType)
	assert.True(t, found.IsUploading)
	require.NotNil(t, found.CreatorID)
	assert.Equal(t, "user-1", *found.CreatorID)
	assert.Equal(t, domain.ScanStatusPending, found.SecurityCheck.Status)
	assert.WithinDuration(t, now, found.CreatedAt, time.Millisecond)

	// Обновление той же записи
	record.MarkAsUploaded(2048, 1<<20, now)
	require.NoError(t, repo.Save(ctx, record))

	found, err = repo.FindOneByID(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, found.IsUploading)
	assert.Equal(t, int64(2048), found.SizeInBytes)
	require.NotNil(t, found.ContentLastModifiedAt)

	byToken, err := repo.FindBySecurityCheckRequestToken(ctx, record.SecurityCheck.RequestToken)
	require.NoError(t, err)
	assert.Equal(t, record.ID, byToken.ID)
}

func TestFileRepository_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.FindOneByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.FindBySecurityCheckRequestToken(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFileRepository_ParentQueriesAndStatistic(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := domain.NewFileRecord("a.txt", "text/plain", testParent("course-2"), "user-1", now)
	a.MarkAsUploaded(10, 100, now)
	b := domain.NewFileRecord("b.txt", "text/plain", testParent("course-2"), "user-2", now)
	b.MarkAsUploaded(30, 100, now)
	c := domain.NewFileRecord("c.txt", "text/plain", testParent("course-2"), "user-1", now)
	c.MarkAsUploaded(50, 100, now)
	c.MarkForDelete(now)
	require.NoError(t, repo.Save(ctx, a, b, c))

	active, err := repo.FindByParentID(ctx, "course-2")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a.txt", active[0].Name)
	assert.Equal(t, "b.txt", active[1].Name)

	deleted, err := repo.FindMarkedForDeleteByParentID(ctx, "course-2")
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, c.ID, deleted[0].ID)

	stat, err := repo.GetStatisticByParentID(ctx, "course-2")
	require.NoError(t, err)
	assert.Equal(t, domain.FileStatistic{FileCount: 2, TotalSizeInBytes: 40}, stat)

	byCreator, err := repo.FindByCreatorID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, byCreator, 1)
	assert.Equal(t, a.ID, byCreator[0].ID)

	multiple, err := repo.FindMultipleByID(ctx, []uuid.UUID{a.ID, c.ID})
	require.NoError(t, err)
	assert.Len(t, multiple, 2)
}

func TestFileRepository_MarkForDeleteByStorageLocationAndDelete(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := domain.NewFileRecord("a.txt", "text/plain", testParent("course-3"), "", now)
	b := domain.NewFileRecord("b.txt", "text/plain", testParent("course-4"), "", now)
	other := domain.ParentInfo{
		StorageLocation:   domain.StorageLocationSchool,
		StorageLocationID: "school-2",
		ParentID:          "course-5",
		ParentType:        domain.ParentTypeCourses,
	}
	c := domain.NewFileRecord("c.txt", "text/plain", other, "", now)
	require.NoError(t, repo.Save(ctx, a, b, c))

	count, err := repo.MarkForDeleteByStorageLocation(ctx, domain.StorageLocationSchool, "school-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	found, err := repo.FindOneByID(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, found.IsMarkedForDelete())

	require.NoError(t, repo.Delete(ctx, a, b))
	_, err = repo.FindOneByID(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
