package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"synxronfiles/internal/domain"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// memRepo хранит копии записей, чтобы изменения в памяти сервиса
// не попадали в хранилище без Save
type memRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]domain.FileRecord
	saveErr func(records []*domain.FileRecord) error
	saves   int
}

func newMemRepo(records ...*domain.FileRecord) *memRepo {
	r := &memRepo{records: map[uuid.UUID]domain.FileRecord{}}
	for _, rec := range records {
		r.records[rec.ID] = *rec
	}
	return r
}

func (r *memRepo) get(id uuid.UUID) (*domain.FileRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, false
	}
	return &rec, true
}

func (r *memRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *memRepo) filter(keep func(domain.FileRecord) bool) []*domain.FileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.FileRecord
	for _, rec := range r.records {
		if keep(rec) {
			rec := rec
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *memRepo) FindOneByID(_ context.Context, id uuid.UUID) (*domain.FileRecord, error) {
	rec, ok := r.get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (r *memRepo) FindMultipleByID(_ context.Context, ids []uuid.UUID) ([]*domain.FileRecord, error) {
	var out []*domain.FileRecord
	for _, id := range ids {
		if rec, ok := r.get(id); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memRepo) FindByParentID(_ context.Context, parentID string) ([]*domain.FileRecord, error) {
	return r.filter(func(rec domain.FileRecord) bool {
		return rec.ParentID == parentID && rec.DeletedSince == nil
	}), nil
}

func (r *memRepo) FindMarkedForDeleteByParentID(_ context.Context, parentID string) ([]*domain.FileRecord, error) {
	return r.filter(func(rec domain.FileRecord) bool {
		return rec.ParentID == parentID && rec.DeletedSince != nil
	}), nil
}

func (r *memRepo) FindByCreatorID(_ context.Context, creatorID string) ([]*domain.FileRecord, error) {
	return r.filter(func(rec domain.FileRecord) bool {
		return rec.CreatorID != nil && *rec.CreatorID == creatorID
	}), nil
}

func (r *memRepo) FindBySecurityCheckRequestToken(_ context.Context, token string) (*domain.FileRecord, error) {
	found := r.filter(func(rec domain.FileRecord) bool {
		return rec.SecurityCheck.RequestToken == token
	})
	if len(found) == 0 {
		return nil, domain.ErrNotFound
	}
	return found[0], nil
}

func (r *memRepo) MarkForDeleteByStorageLocation(_ context.Context, location domain.StorageLocation, storageLocationID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, rec := range r.records {
		if rec.StorageLocation == location && rec.StorageLocationID == storageLocationID && rec.DeletedSince == nil {
			rec.MarkForDelete(rec.UpdatedAt)
			r.records[id] = rec
			count++
		}
	}
	return count, nil
}

func (r *memRepo) Save(_ context.Context, records ...*domain.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saves++
	if r.saveErr != nil {
		if err := r.saveErr(records); err != nil {
			return err
		}
	}
	for _, rec := range records {
		r.records[rec.ID] = *rec
	}
	return nil
}

func (r *memRepo) Delete(_ context.Context, records ...*domain.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		delete(r.records, rec.ID)
	}
	return nil
}

func (r *memRepo) GetStatisticByParentID(_ context.Context, parentID string) (domain.FileStatistic, error) {
	var stat domain.FileStatistic
	for _, rec := range r.filter(func(rec domain.FileRecord) bool {
		return rec.ParentID == parentID && rec.DeletedSince == nil
	}) {
		stat.FileCount++
		stat.TotalSizeInBytes += rec.SizeInBytes
	}
	return stat, nil
}

// memStorage объектное хранилище в памяти с корзиной trash/
type memStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	createErr error
	copyErr   func(path domain.CopyPath) error
	trashErr  error
	dirErr    error
	deletes   int
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (s *memStorage) object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	return data, ok
}

func (s *memStorage) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *memStorage) Create(_ context.Context, path string, r io.Reader) error {
	if s.createErr != nil {
		return s.createErr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
	return nil
}

func (s *memStorage) Get(_ context.Context, path string, byteRange *domain.ByteRange) (*domain.StoredObject, error) {
	data, ok := s.object(path)
	if !ok {
		return nil, domain.ErrNotFound
	}
	if byteRange != nil {
		end := byteRange.End
		if end < 0 || end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		data = data[byteRange.Start : end+1]
	}
	return &domain.StoredObject{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: int64(len(data)),
	}, nil
}

func (s *memStorage) Copy(_ context.Context, paths []domain.CopyPath) error {
	for _, p := range paths {
		if s.copyErr != nil {
			if err := s.copyErr(p); err != nil {
				return err
			}
		}

		s.mu.Lock()
		data, ok := s.objects[p.SourcePath]
		if ok {
			s.objects[p.TargetPath] = data
		}
		s.mu.Unlock()

		if !ok {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (s *memStorage) Delete(_ context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletes++
	for _, p := range paths {
		delete(s.objects, p)
	}
	return nil
}

func (s *memStorage) move(paths []string, from, to func(string) string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range paths {
		if data, ok := s.objects[from(p)]; ok {
			s.objects[to(p)] = data
			delete(s.objects, from(p))
		}
	}
}

func (s *memStorage) MoveToTrash(_ context.Context, paths []string) error {
	if s.trashErr != nil {
		return s.trashErr
	}
	s.move(paths, func(p string) string { return p }, func(p string) string { return "trash/" + p })
	return nil
}

func (s *memStorage) Restore(_ context.Context, paths []string) error {
	if s.trashErr != nil {
		return s.trashErr
	}
	s.move(paths, func(p string) string { return "trash/" + p }, func(p string) string { return p })
	return nil
}

func (s *memStorage) MoveDirectoryToTrash(_ context.Context, prefix string) error {
	if s.dirErr != nil {
		return s.dirErr
	}

	s.mu.Lock()
	var paths []string
	for p := range s.objects {
		if strings.HasPrefix(p, prefix+"/") {
			paths = append(paths, p)
		}
	}
	s.mu.Unlock()

	s.move(paths, func(p string) string { return p }, func(p string) string { return "trash/" + p })
	return nil
}

// fakeScanner записывает все обращения
type fakeScanner struct {
	mu          sync.Mutex
	result      domain.ScanResult
	checkErr    error
	sendErr     error
	checked     [][]byte
	scanned     [][]byte
	sentTokens  []string
	checkCalled int
}

func (s *fakeScanner) ScanStream(_ context.Context, r io.Reader) (domain.ScanResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.ScanResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanned = append(s.scanned, data)
	return s.result, nil
}

func (s *fakeScanner) CheckStream(_ context.Context, r io.Reader) (domain.ScanResult, error) {
	s.mu.Lock()
	s.checkCalled++
	checkErr := s.checkErr
	s.mu.Unlock()

	if checkErr != nil {
		return domain.ScanResult{}, checkErr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return domain.ScanResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked = append(s.checked, data)
	return s.result, nil
}

func (s *fakeScanner) Send(_ context.Context, requestToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendErr != nil {
		return s.sendErr
	}
	s.sentTokens = append(s.sentTokens, requestToken)
	return nil
}

func (s *fakeScanner) tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sentTokens...)
}

func (s *fakeScanner) checks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkCalled
}

// fakeReporter собирает ошибки побочного канала
type fakeReporter struct {
	mu     sync.Mutex
	errors []error
}

func (r *fakeReporter) ReportError(_ context.Context, err error, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *fakeReporter) reported() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}

// failingReader отдает prefix, затем ошибку
type failingReader struct {
	prefix []byte
	err    error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.prefix) == 0 {
		return 0, r.err
	}
	n := copy(p, r.prefix)
	r.prefix = r.prefix[n:]
	return n, nil
}

var errInjected = errors.New("injected failure")
