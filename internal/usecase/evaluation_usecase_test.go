package usecase

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oac-climate/cix-analyzer/internal/indicator"
	"github.com/oac-climate/cix-analyzer/internal/model"
	"github.com/oac-climate/cix-analyzer/internal/parser"
	"github.com/oac-climate/cix-analyzer/internal/repository"
	"github.com/oac-climate/cix-analyzer/internal/service"
)

type fakeStore struct {
	evals      []model.Evaluation
	failCreate error
}

func (s *fakeStore) Create(eval *model.Evaluation) error {
	if s.failCreate != nil {
		return s.failCreate
	}
	s.evals = append(s.evals, *eval)
	return nil
}

func (s *fakeStore) List() ([]model.Evaluation, error) {
	out := make([]model.Evaluation, len(s.evals))
	copy(out, s.evals)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) FindByID(id string) (*model.Evaluation, error) {
	for i := range s.evals {
		if s.evals[i].ID.String() == id {
			eval := s.evals[i]
			return &eval, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeStore) DeleteByID(id string) error {
	for i := range s.evals {
		if s.evals[i].ID.String() == id {
			s.evals = append(s.evals[:i], s.evals[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type failingDeleteStore struct {
	fakeStore
	failDelete error
}

func (s *failingDeleteStore) DeleteByID(id string) error {
	if s.failDelete != nil {
		return s.failDelete
	}
	return s.fakeStore.DeleteByID(id)
}

type fakeStorage struct {
	objects    map[string][]byte
	failUpload error
	failDelete error
	deleted    []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	if s.failUpload != nil {
		return "", s.failUpload
	}
	s.objects[key] = data
	return s.PublicURL(key), nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	if s.failDelete != nil {
		return s.failDelete
	}
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) PublicURL(key string) string {
	return "https://store.test/public/" + key
}

func testDefs() []indicator.Definition {
	return []indicator.Definition{
		{Name: "activity_data", Kind: indicator.RuleCategorical, Categories: map[string]float64{"n": 0, "p": 0.4, "t": 0.8, "e": 1}, MaxPoints: 1},
		{Name: "audit", Kind: indicator.RuleCategorical, Categories: map[string]float64{"n": 0, "p": 0.4, "t": 0.8, "e": 1}, MaxPoints: 1},
	}
}

func newTestUsecase(t *testing.T) (*EvaluationUsecase, *fakeStore, *fakeStorage) {
	t.Helper()
	store := &fakeStore{}
	storage := newFakeStorage()
	return NewEvaluationUsecase(store, storage, testDefs()), store, storage
}

const sampleCSV = "organization,period,activity_data,audit\nAcme Corp,2024,E,P\n"

func TestUploadListRoundTrip(t *testing.T) {
	uc, _, storage := newTestUsecase(t)

	result, err := uc.Upload(context.Background(), "acme.csv", []byte(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", result.Evaluation.Organization)
	assert.Equal(t, 1.0, result.Evaluation.Scores["activity_data"])
	assert.Equal(t, 0.4, result.Evaluation.Scores["audit"])
	assert.Equal(t, 1.4, result.Evaluation.TotalScore)
	assert.NotEmpty(t, result.Evaluation.BlobURL)
	assert.Len(t, storage.objects, 1)

	list, pagination, err := uc.List(1, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, result.Evaluation.ID, list[0].ID)
	assert.Equal(t, result.Evaluation.Scores, list[0].Scores)
	assert.Equal(t, result.Evaluation.TotalScore, list[0].TotalScore)
	assert.Equal(t, int64(1), pagination.TotalItems)
	assert.False(t, pagination.HasMore)
}

func TestUploadCompensatesOrphanedBlob(t *testing.T) {
	store := &fakeStore{failCreate: errors.New("connection reset")}
	storage := newFakeStorage()
	uc := NewEvaluationUsecase(store, storage, testDefs())

	_, err := uc.Upload(context.Background(), "acme.csv", []byte(sampleCSV))
	require.Error(t, err)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Empty(t, storage.objects, "orphaned blob must be removed")
	require.Len(t, storage.deleted, 1)

	list, _, err := uc.List(1, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUploadCompensationFailureIsSwallowed(t *testing.T) {
	store := &fakeStore{failCreate: errors.New("insert failed")}
	storage := newFakeStorage()
	storage.failDelete = errors.New("storage down")
	uc := NewEvaluationUsecase(store, storage, testDefs())

	_, err := uc.Upload(context.Background(), "acme.csv", []byte(sampleCSV))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr, "original persistence failure dominates")
}

func TestUploadStorageFailureLeavesNoRow(t *testing.T) {
	uc, store, storage := newTestUsecase(t)
	storage.failUpload = &service.StorageError{Op: "upload", Key: "k", Err: errors.New("503")}

	_, err := uc.Upload(context.Background(), "acme.csv", []byte(sampleCSV))
	var serr *service.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Empty(t, store.evals)
}

func TestUploadSchemaMismatchPropagates(t *testing.T) {
	uc, _, _ := newTestUsecase(t)

	_, err := uc.Upload(context.Background(), "bad.csv", []byte("organization,activity_data\nAcme,E\n"))
	var mismatch *parser.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"audit"}, mismatch.Missing)
}

func TestUploadNoUsableRows(t *testing.T) {
	uc, _, _ := newTestUsecase(t)

	_, err := uc.Upload(context.Background(), "empty.csv", []byte("organization,activity_data,audit\n,E,T\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable rows")
}

func TestUploadReportsRejectedRows(t *testing.T) {
	uc, _, _ := newTestUsecase(t)
	csv := "organization,activity_data,audit\n,E,T\nAcme,E,T\n"

	result, err := uc.Upload(context.Background(), "r.csv", []byte(csv))
	require.NoError(t, err)
	require.Len(t, result.RejectedRows, 1)
	assert.Equal(t, 2, result.RejectedRows[0].Line)
}

func TestDeleteRemovesBlobThenRow(t *testing.T) {
	uc, store, storage := newTestUsecase(t)
	result, err := uc.Upload(context.Background(), "acme.csv", []byte(sampleCSV))
	require.NoError(t, err)

	require.NoError(t, uc.Delete(context.Background(), result.Evaluation.ID.String()))
	assert.Empty(t, storage.objects)
	assert.Empty(t, store.evals)

	list, _, err := uc.List(1, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteUnknownIDIsNoOp(t *testing.T) {
	uc, _, _ := newTestUsecase(t)
	assert.NoError(t, uc.Delete(context.Background(), "7b00f9a6-0000-0000-0000-000000000000"))
}

func TestDeleteKeepsRowWhenBlobDeleteFails(t *testing.T) {
	uc, store, storage := newTestUsecase(t)
	result, err := uc.Upload(context.Background(), "acme.csv", []byte(sampleCSV))
	require.NoError(t, err)

	storage.failDelete = &service.StorageError{Op: "delete", Key: "k", Err: errors.New("503")}
	err = uc.Delete(context.Background(), result.Evaluation.ID.String())

	var serr *service.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Len(t, store.evals, 1, "row must survive a failed blob delete")
}

func TestDeleteReportsInconsistencyWhenRowDeleteFails(t *testing.T) {
	store := &failingDeleteStore{}
	storage := newFakeStorage()
	uc := NewEvaluationUsecase(store, storage, testDefs())

	result, err := uc.Upload(context.Background(), "acme.csv", []byte(sampleCSV))
	require.NoError(t, err)

	store.failDelete = errors.New("deadlock")
	err = uc.Delete(context.Background(), result.Evaluation.ID.String())

	var inconsistency *InconsistencyError
	require.ErrorAs(t, err, &inconsistency)
	assert.Empty(t, storage.objects, "blob is already gone")
}

func TestExportCSV(t *testing.T) {
	uc, _, _ := newTestUsecase(t)
	_, err := uc.Upload(context.Background(), "acme.csv", []byte(sampleCSV))
	require.NoError(t, err)
	_, err = uc.Upload(context.Background(), "globex.csv",
		[]byte("organization,period,activity_data,audit\nGlobex,2023,T,N\n"))
	require.NoError(t, err)

	out, err := uc.ExportCSV()
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"organization", "period", "filename", "uploaded_at", "activity_data", "audit", "total_score", "blob_url"}, records[0])

	byOrg := map[string][]string{}
	for _, rec := range records[1:] {
		byOrg[rec[0]] = rec
	}
	require.Contains(t, byOrg, "Acme Corp")
	assert.Equal(t, "1", byOrg["Acme Corp"][4])
	assert.Equal(t, "0.4", byOrg["Acme Corp"][5])
	assert.Equal(t, "1.4", byOrg["Acme Corp"][6])
	assert.Equal(t, "0.8", byOrg["Globex"][4])
	assert.Equal(t, "0", byOrg["Globex"][5])
}

func TestSummary(t *testing.T) {
	uc, _, _ := newTestUsecase(t)
	_, err := uc.Upload(context.Background(), "acme.csv", []byte(sampleCSV))
	require.NoError(t, err)
	_, err = uc.Upload(context.Background(), "globex.csv",
		[]byte("organization,period,activity_data,audit\nGlobex,2023,N,N\n"))
	require.NoError(t, err)

	summary, err := uc.Summary()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Evaluations)
	assert.Equal(t, 2.0, summary.MaxTotal)

	require.Len(t, summary.IndicatorAverages, 2)
	assert.Equal(t, "activity_data", summary.IndicatorAverages[0].Indicator)
	assert.Equal(t, 0.5, summary.IndicatorAverages[0].Average)
	assert.Equal(t, 0.2, summary.IndicatorAverages[1].Average)

	require.Len(t, summary.Ranking, 2)
	assert.Equal(t, "Acme Corp", summary.Ranking[0].Organization, "ranking is descending by total")
	assert.Equal(t, "Globex", summary.Ranking[1].Organization)
}

func TestListPagination(t *testing.T) {
	uc, _, _ := newTestUsecase(t)
	for i := 0; i < 5; i++ {
		csv := fmt.Sprintf("organization,activity_data,audit\nOrg %d,E,E\n", i)
		_, err := uc.Upload(context.Background(), fmt.Sprintf("r%d.csv", i), []byte(csv))
		require.NoError(t, err)
	}

	page1, pagination, err := uc.List(1, 2)
	require.NoError(t, err)
	assert.Len(t, page1, 2)
	assert.Equal(t, int64(5), pagination.TotalItems)
	assert.Equal(t, int64(3), pagination.TotalPages)
	assert.True(t, pagination.HasMore)

	page3, pagination, err := uc.List(3, 2)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
	assert.False(t, pagination.HasMore)
}
