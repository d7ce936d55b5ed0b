package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synxronfiles/internal/domain"
)

var pngContent = append([]byte{
	0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n',
	0x00, 0x00, 0x00, 0x0d, 'I', 'H', 'D', 'R',
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}, bytes.Repeat([]byte{0x42}, 200_000)...)

var pdfContent = []byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

var fixedNow = time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

func testParent() domain.ParentInfo {
	return domain.ParentInfo{
		StorageLocation:   domain.StorageLocationSchool,
		StorageLocationID: "school-1",
		ParentID:          "course-1",
		ParentType:        domain.ParentTypeCourses,
	}
}

type fileServiceEnv struct {
	svc     *FileService
	repo    *memRepo
	storage *memStorage
	scanner *fakeScanner
}

func newFileServiceEnv(conf Config, existing ...*domain.FileRecord) *fileServiceEnv {
	env := &fileServiceEnv{
		repo:    newMemRepo(existing...),
		storage: newMemStorage(),
		scanner: &fakeScanner{},
	}
	env.svc = NewFileService(conf, env.repo, env.storage, env.scanner, discardLogger)
	env.svc.now = func() time.Time { return fixedNow }
	return env
}

func source(name, mimeType string, data []byte) SourceFile {
	return SourceFile{Name: name, MimeType: mimeType, Data: bytes.NewReader(data)}
}

func TestUploadFile_StoresContentAndSubmitsScan(t *testing.T) {
	env := newFileServiceEnv(DefaultConfig())

	record, err := env.svc.UploadFile(context.Background(), "user-1", testParent(),
		source("photo.png", "application/octet-stream", pngContent))
	require.NoError(t, err)

	assert.Equal(t, "photo.png", record.Name)
	assert.Equal(t, "image/png", record.MimeType)
	assert.Equal(t, int64(len(pngContent)), record.SizeInBytes)
	assert.False(t, record.IsUploading)
	assert.Equal(t, domain.ScanStatusPending, record.SecurityCheck.Status)
	require.NotNil(t, record.ContentLastModifiedAt)
	assert.Equal(t, fixedNow, *record.ContentLastModifiedAt)

	stored, ok := env.repo.get(record.ID)
	require.True(t, ok)
	assert.False(t, stored.IsUploading)
	assert.Equal(t, record.SizeInBytes, stored.SizeInBytes)

	blob, ok := env.storage.object("school-1/" + record.ID.String())
	require.True(t, ok)
	assert.Equal(t, pngContent, blob)

	assert.Equal(t, []string{record.SecurityCheck.RequestToken}, env.scanner.tokens())
	assert.Zero(t, env.scanner.checks())
}

func TestUploadFile_ResolvesNameCollision(t *testing.T) {
	parent := testParent()
	existing := []*domain.FileRecord{
		domain.NewFileRecord("report.pdf", "application/pdf", parent, "", fixedNow),
		domain.NewFileRecord("report (1).pdf", "application/pdf", parent, "", fixedNow),
	}
	env := newFileServiceEnv(DefaultConfig(), existing...)

	record, err := env.svc.UploadFile(context.Background(), "user-1", parent,
		source("report.pdf", "application/pdf", pdfContent))
	require.NoError(t, err)
	assert.Equal(t, "report (2).pdf", record.Name)
}

func TestUploadFile_DeletedSiblingDoesNotCollide(t *testing.T) {
	parent := testParent()
	deleted := domain.NewFileRecord("report.pdf", "application/pdf", parent, "", fixedNow)
	deleted.MarkForDelete(fixedNow)
	env := newFileServiceEnv(DefaultConfig(), deleted)

	record, err := env.svc.UploadFile(context.Background(), "user-1", parent,
		source("report.pdf", "application/pdf", pdfContent))
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", record.Name)
}

func TestUploadFile_TooBigLeavesNothingBehind(t *testing.T) {
	conf := DefaultConfig()
	conf.MaxFileSize = 1024
	env := newFileServiceEnv(conf)

	_, err := env.svc.UploadFile(context.Background(), "user-1", testParent(),
		source("photo.png", "image/png", pngContent))
	require.ErrorIs(t, err, domain.ErrFileTooBig)

	assert.Zero(t, env.repo.len())
	assert.Zero(t, env.storage.len())
	assert.Empty(t, env.scanner.tokens())
}

func TestUploadFile_WontCheckSkipsScanner(t *testing.T) {
	conf := DefaultConfig()
	conf.MaxSecurityCheckFileSize = 1024
	env := newFileServiceEnv(conf)

	record, err := env.svc.UploadFile(context.Background(), "user-1", testParent(),
		source("photo.png", "image/png", pngContent))
	require.NoError(t, err)

	assert.Equal(t, domain.ScanStatusWontCheck, record.SecurityCheck.Status)
	assert.Empty(t, env.scanner.tokens())
	assert.Zero(t, env.scanner.checks())
}

func TestUploadFile_StreamScanVerifies(t *testing.T) {
	conf := DefaultConfig()
	conf.UseStreamToAntivirus = true
	env := newFileServiceEnv(conf)
	clean := false
	env.scanner.result = domain.ScanResult{VirusDetected: &clean}

	record, err := env.svc.UploadFile(context.Background(), "user-1", testParent(),
		source("photo.png", "image/png", pngContent))
	require.NoError(t, err)

	assert.Equal(t, domain.ScanStatusVerified, record.SecurityCheck.Status)
	assert.Equal(t, int64(len(pngContent)), record.SizeInBytes)
	require.Len(t, env.scanner.checked, 1)
	assert.Equal(t, pngContent, env.scanner.checked[0])
	assert.Empty(t, env.scanner.tokens())
}

func TestUploadFile_StreamScanBlocks(t *testing.T) {
	conf := DefaultConfig()
	conf.UseStreamToAntivirus = true
	env := newFileServiceEnv(conf)
	infected := true
	env.scanner.result = domain.ScanResult{VirusDetected: &infected, VirusSignature: "Eicar-Test-Signature"}

	record, err := env.svc.UploadFile(context.Background(), "user-1", testParent(),
		source("photo.png", "image/png", pngContent))
	require.NoError(t, err)

	assert.Equal(t, domain.ScanStatusBlocked, record.SecurityCheck.Status)
	assert.Equal(t, "Eicar-Test-Signature", record.SecurityCheck.Reason)
}

func TestUploadFile_StreamScanOnlyForScannableTypes(t *testing.T) {
	conf := DefaultConfig()
	conf.UseStreamToAntivirus = true
	env := newFileServiceEnv(conf)

	record, err := env.svc.UploadFile(context.Background(), "user-1", testParent(),
		source("archive.bin", "application/x-custom", []byte{0x13, 0x37, 0x00, 0x42, 0x00, 0x99, 0x7f}))
	require.NoError(t, err)

	assert.Zero(t, env.scanner.checks())
	assert.Equal(t, []string{record.SecurityCheck.RequestToken}, env.scanner.tokens())
}

func TestUploadFile_RollbackOnFailures(t *testing.T) {
	tests := []struct {
		name    string
		conf    func(*Config)
		prepare func(env *fileServiceEnv)
		data    func() SourceFile
	}{
		{
			name:    "storage failure",
			prepare: func(env *fileServiceEnv) { env.storage.createErr = errInjected },
			data:    func() SourceFile { return source("photo.png", "image/png", pngContent) },
		},
		{
			name: "source failure",
			data: func() SourceFile {
				return SourceFile{
					Name:     "photo.png",
					MimeType: "image/png",
					Data:     &failingReader{prefix: pngContent[:100_000], err: errInjected},
				}
			},
		},
		{
			name:    "scan submission failure",
			prepare: func(env *fileServiceEnv) { env.scanner.sendErr = errInjected },
			data:    func() SourceFile { return source("photo.png", "image/png", pngContent) },
		},
		{
			name:    "stream scan failure",
			conf:    func(c *Config) { c.UseStreamToAntivirus = true },
			prepare: func(env *fileServiceEnv) { env.scanner.checkErr = errInjected },
			data:    func() SourceFile { return source("photo.png", "image/png", pngContent) },
		},
		{
			name: "final save failure",
			prepare: func(env *fileServiceEnv) {
				env.repo.saveErr = func(records []*domain.FileRecord) error {
					if !records[0].IsUploading {
						return errInjected
					}
					return nil
				}
			},
			data: func() SourceFile { return source("photo.png", "image/png", pngContent) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := DefaultConfig()
			if tt.conf != nil {
				tt.conf(&conf)
			}
			env := newFileServiceEnv(conf)
			if tt.prepare != nil {
				tt.prepare(env)
			}

			_, err := env.svc.UploadFile(context.Background(), "user-1", testParent(), tt.data())
			require.ErrorIs(t, err, errInjected)

			assert.Zero(t, env.repo.len())
			assert.Zero(t, env.storage.len())
		})
	}
}

func TestUploadFile_ValidatesInput(t *testing.T) {
	env := newFileServiceEnv(DefaultConfig())

	invalid := testParent()
	invalid.ParentType = "folders"
	_, err := env.svc.UploadFile(context.Background(), "user-1", invalid, source("a.pdf", "application/pdf", pdfContent))
	assert.ErrorIs(t, err, domain.ErrInvalidParent)

	_, err = env.svc.UploadFile(context.Background(), "user-1", testParent(), source(" ", "application/pdf", pdfContent))
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	assert.Zero(t, env.repo.len())
}

func TestUpdateFileContents_MimeMismatchWritesNothing(t *testing.T) {
	existing := domain.NewFileRecord("photo.png", "image/png", testParent(), "user-1", fixedNow)
	existing.MarkAsUploaded(10, 1<<20, fixedNow)
	env := newFileServiceEnv(DefaultConfig(), existing)

	record, _ := env.repo.get(existing.ID)
	_, err := env.svc.UpdateFileContents(context.Background(), record, source("photo.png", "", pdfContent))
	require.ErrorIs(t, err, domain.ErrMimeTypeMismatch)

	stored, ok := env.repo.get(existing.ID)
	require.True(t, ok)
	assert.Equal(t, *existing, *stored)
	assert.Zero(t, env.storage.len())
}

func TestUpdateFileContents_ReplacesContent(t *testing.T) {
	existing := domain.NewFileRecord("photo.png", "image/png", testParent(), "user-1", fixedNow)
	existing.MarkAsUploaded(10, 1<<20, fixedNow)
	env := newFileServiceEnv(DefaultConfig(), existing)
	oldToken := existing.SecurityCheck.RequestToken

	record, _ := env.repo.get(existing.ID)
	updated, err := env.svc.UpdateFileContents(context.Background(), record, source("photo.png", "", pngContent))
	require.NoError(t, err)

	assert.Equal(t, int64(len(pngContent)), updated.SizeInBytes)
	assert.False(t, updated.IsUploading)
	assert.NotEqual(t, oldToken, updated.SecurityCheck.RequestToken)
	assert.Equal(t, []string{updated.SecurityCheck.RequestToken}, env.scanner.tokens())

	blob, ok := env.storage.object(existing.StoragePath())
	require.True(t, ok)
	assert.Equal(t, pngContent, blob)
}

func TestUpdateFileContents_RollbackOnStorageFailure(t *testing.T) {
	existing := domain.NewFileRecord("photo.png", "image/png", testParent(), "user-1", fixedNow)
	existing.MarkAsUploaded(10, 1<<20, fixedNow)
	env := newFileServiceEnv(DefaultConfig(), existing)
	env.storage.createErr = errInjected

	record, _ := env.repo.get(existing.ID)
	_, err := env.svc.UpdateFileContents(context.Background(), record, source("photo.png", "", pngContent))
	require.ErrorIs(t, err, errInjected)

	_, ok := env.repo.get(existing.ID)
	assert.False(t, ok)
}

func TestDownload(t *testing.T) {
	env := newFileServiceEnv(DefaultConfig())
	record, err := env.svc.UploadFile(context.Background(), "user-1", testParent(),
		source("doc.pdf", "application/pdf", pdfContent))
	require.NoError(t, err)

	obj, err := env.svc.Download(context.Background(), record, &domain.ByteRange{Start: 0, End: 3})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, int64(4), obj.ContentLength)

	uploading := *record
	uploading.IsUploading = true
	_, err = env.svc.Download(context.Background(), &uploading, nil)
	assert.ErrorIs(t, err, domain.ErrFileUploading)

	blocked := *record
	infected := true
	blocked.UpdateSecurityCheckFromScanResult(domain.ScanResult{VirusDetected: &infected}, fixedNow)
	_, err = env.svc.Download(context.Background(), &blocked, nil)
	assert.ErrorIs(t, err, domain.ErrBlocked)
}

func TestRenameFile(t *testing.T) {
	parent := testParent()
	a := domain.NewFileRecord("a.txt", "text/plain", parent, "", fixedNow)
	b := domain.NewFileRecord("b.txt", "text/plain", parent, "", fixedNow)
	env := newFileServiceEnv(DefaultConfig(), a, b)

	_, err := env.svc.RenameFile(context.Background(), a.ID, "b.txt")
	assert.ErrorIs(t, err, domain.ErrFileNameExists)

	renamed, err := env.svc.RenameFile(context.Background(), a.ID, "c.txt")
	require.NoError(t, err)
	assert.Equal(t, "c.txt", renamed.Name)

	stored, _ := env.repo.get(a.ID)
	assert.Equal(t, "c.txt", stored.Name)

	_, err = env.svc.RenameFile(context.Background(), a.ID, "dir/c.txt")
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestUpdateSecurityCheckStatus(t *testing.T) {
	record := domain.NewFileRecord("a.pdf", "application/pdf", testParent(), "", fixedNow)
	env := newFileServiceEnv(DefaultConfig(), record)

	clean := false
	updated, err := env.svc.UpdateSecurityCheckStatus(context.Background(), record.SecurityCheck.RequestToken,
		domain.ScanResult{VirusDetected: &clean})
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStatusVerified, updated.SecurityCheck.Status)

	stored, _ := env.repo.get(record.ID)
	assert.Equal(t, domain.ScanStatusVerified, stored.SecurityCheck.Status)

	_, err = env.svc.UpdateSecurityCheckStatus(context.Background(), "unknown", domain.ScanResult{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRescanFile(t *testing.T) {
	env := newFileServiceEnv(DefaultConfig())
	record, err := env.svc.UploadFile(context.Background(), "user-1", testParent(),
		source("doc.pdf", "application/pdf", pdfContent))
	require.NoError(t, err)

	env.scanner.result = domain.ScanResult{Error: "engine unavailable"}
	rescanned, err := env.svc.RescanFile(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStatusError, rescanned.SecurityCheck.Status)
	require.Len(t, env.scanner.scanned, 1)
	assert.Equal(t, pdfContent, env.scanner.scanned[0])

	status, err := env.svc.GetFileRecordStatus(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStatusError, status.ScanStatus)
}

func TestStatisticAndCreatorQueries(t *testing.T) {
	env := newFileServiceEnv(DefaultConfig())
	for _, name := range []string{"a.pdf", "b.pdf"} {
		_, err := env.svc.UploadFile(context.Background(), "user-1", testParent(),
			source(name, "application/pdf", pdfContent))
		require.NoError(t, err)
	}

	stat, err := env.svc.GetParentStatistic(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stat.FileCount)
	assert.Equal(t, int64(2*len(pdfContent)), stat.TotalSizeInBytes)

	files, err := env.svc.FindFilesOfCreator(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestMarkPreviewGenerationFailed(t *testing.T) {
	record := domain.NewFileRecord("a.png", "image/png", testParent(), "", fixedNow)
	env := newFileServiceEnv(DefaultConfig(), record)

	updated, err := env.svc.MarkPreviewGenerationFailed(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, updated.PreviewGenerationFailed)
	assert.Equal(t, domain.PreviewStatusGenerationFailed, updated.PreviewStatus())
}

func TestRescanFile_RejectsFinalAndVerifiedStatuses(t *testing.T) {
	infected, clean := true, false

	tests := []struct {
		name    string
		conf    func() Config
		prepare func(t *testing.T, env *fileServiceEnv, record *domain.FileRecord)
		want    domain.ScanStatus
	}{
		{
			name: "wont check",
			conf: func() Config {
				conf := DefaultConfig()
				conf.MaxSecurityCheckFileSize = 10
				return conf
			},
			want: domain.ScanStatusWontCheck,
		},
		{
			name: "blocked",
			conf: DefaultConfig,
			prepare: func(t *testing.T, env *fileServiceEnv, record *domain.FileRecord) {
				_, err := env.svc.UpdateSecurityCheckStatus(context.Background(), record.SecurityCheck.RequestToken,
					domain.ScanResult{VirusDetected: &infected, VirusSignature: "Eicar-Test-Signature"})
				require.NoError(t, err)
			},
			want: domain.ScanStatusBlocked,
		},
		{
			name: "verified",
			conf: DefaultConfig,
			prepare: func(t *testing.T, env *fileServiceEnv, record *domain.FileRecord) {
				_, err := env.svc.UpdateSecurityCheckStatus(context.Background(), record.SecurityCheck.RequestToken,
					domain.ScanResult{VirusDetected: &clean})
				require.NoError(t, err)
			},
			want: domain.ScanStatusVerified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newFileServiceEnv(tt.conf())
			record, err := env.svc.UploadFile(context.Background(), "user-1", testParent(),
				source("doc.pdf", "application/pdf", pdfContent))
			require.NoError(t, err)
			if tt.prepare != nil {
				tt.prepare(t, env, record)
			}

			env.scanner.result = domain.ScanResult{VirusDetected: &clean}
			_, err = env.svc.RescanFile(context.Background(), record.ID)
			assert.ErrorIs(t, err, domain.ErrScanNotAllowed)
			assert.True(t, domain.IsValidation(err))
			assert.Empty(t, env.scanner.scanned)

			stored, _ := env.repo.get(record.ID)
			assert.Equal(t, tt.want, stored.SecurityCheck.Status)
		})
	}
}

func TestUpdateSecurityCheckStatus_IgnoresFinalStatuses(t *testing.T) {
	infected, clean := true, false

	blocked := domain.NewFileRecord("virus.pdf", "application/pdf", testParent(), "", fixedNow)
	blocked.UpdateSecurityCheckFromScanResult(domain.ScanResult{VirusDetected: &infected, VirusSignature: "Eicar"}, fixedNow)
	large := domain.NewFileRecord("large.pdf", "application/pdf", testParent(), "", fixedNow)
	large.MarkAsUploaded(100, 10, fixedNow)
	env := newFileServiceEnv(DefaultConfig(), blocked, large)

	for _, record := range []*domain.FileRecord{blocked, large} {
		updated, err := env.svc.UpdateSecurityCheckStatus(context.Background(), record.SecurityCheck.RequestToken,
			domain.ScanResult{VirusDetected: &clean})
		require.NoError(t, err)
		assert.Equal(t, record.SecurityCheck.Status, updated.SecurityCheck.Status)
		assert.Equal(t, record.SecurityCheck.Reason, updated.SecurityCheck.Reason)

		stored, _ := env.repo.get(record.ID)
		assert.Equal(t, record.SecurityCheck.Status, stored.SecurityCheck.Status)
	}
	assert.Zero(t, env.repo.saves)

	_, err := env.svc.Download(context.Background(), blocked, nil)
	assert.ErrorIs(t, err, domain.ErrBlocked)
}

func TestUploadFile_StreamScanAboveCeilingKeepsWontCheck(t *testing.T) {
	conf := DefaultConfig()
	conf.UseStreamToAntivirus = true
	conf.MaxSecurityCheckFileSize = 1024
	env := newFileServiceEnv(conf)
	clean := false
	env.scanner.result = domain.ScanResult{VirusDetected: &clean}

	record, err := env.svc.UploadFile(context.Background(), "user-1", testParent(),
		source("photo.png", "image/png", pngContent))
	require.NoError(t, err)

	// размер известен только после потока, поэтому проверка уже прошла
	assert.Equal(t, 1, env.scanner.checks())
	assert.Equal(t, domain.ScanStatusWontCheck, record.SecurityCheck.Status)
	assert.Empty(t, env.scanner.tokens())

	stored, _ := env.repo.get(record.ID)
	assert.Equal(t, domain.ScanStatusWontCheck, stored.SecurityCheck.Status)
}

func TestUploadFile_ClosedCancelDoesNotTruncate(t *testing.T) {
	env := newFileServiceEnv(DefaultConfig())
	cancel := make(chan struct{})
	close(cancel)

	src := source("photo.png", "image/png", pngContent)
	src.Cancel = cancel
	record, err := env.svc.UploadFile(context.Background(), "user-1", testParent(), src)
	require.NoError(t, err)

	assert.Equal(t, int64(len(pngContent)), record.SizeInBytes)
	blob, ok := env.storage.object(record.StoragePath())
	require.True(t, ok)
	assert.Equal(t, pngContent, blob)
}
