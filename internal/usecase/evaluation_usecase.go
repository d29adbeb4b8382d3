package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oac-climate/cix-analyzer/internal/dto"
	"github.com/oac-climate/cix-analyzer/internal/indicator"
	"github.com/oac-climate/cix-analyzer/internal/model"
	"github.com/oac-climate/cix-analyzer/internal/parser"
	"github.com/oac-climate/cix-analyzer/internal/repository"
	"github.com/oac-climate/cix-analyzer/internal/response"
	"github.com/oac-climate/cix-analyzer/internal/service"
)

// PersistenceError wraps a failed relational-store call.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InconsistencyError reports a partial delete: the blob is gone but its row
// remains and needs manual remediation.
type InconsistencyError struct {
	ID  string
	Err error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("evaluation %s: blob deleted but row removal failed, record is stale: %v", e.ID, e.Err)
}

func (e *InconsistencyError) Unwrap() error { return e.Err }

// EvaluationStore is the relational half of the persistence gateway.
type EvaluationStore interface {
	Create(eval *model.Evaluation) error
	List() ([]model.Evaluation, error)
	FindByID(id string) (*model.Evaluation, error)
	DeleteByID(id string) error
}

// EvaluationUsecase orchestrates one submission at a time: parse, score,
// store the blob, persist the row. Reads and deletes go the same way back.
type EvaluationUsecase struct {
	store   EvaluationStore
	storage service.StorageServiceInterface
	defs    []indicator.Definition
}

func NewEvaluationUsecase(store EvaluationStore, storage service.StorageServiceInterface, defs []indicator.Definition) *EvaluationUsecase {
	return &EvaluationUsecase{store: store, storage: storage, defs: defs}
}

// Upload ingests one report file: parse, score the first accepted row, upload
// the original bytes, insert the record. If the insert fails after the blob
// upload succeeded, the orphaned blob is removed best-effort and the
// persistence failure is the one reported.
func (uc *EvaluationUsecase) Upload(ctx context.Context, filename string, data []byte) (*dto.UploadResultDTO, error) {
	report, err := parser.Parse(filename, data, indicator.Names(uc.defs))
	if err != nil {
		return nil, err
	}
	if len(report.Rows) == 0 {
		return nil, fmt.Errorf("report %q contains no usable rows (%d rejected)", filename, len(report.Rejected))
	}

	// One file maps to one evaluation; extra data rows are ignored, rejected
	// ones are echoed back to the caller.
	row := report.Rows[0]
	scores, total := indicator.ScoreRow(uc.defs, row.Values)

	eval := &model.Evaluation{
		ID:               uuid.New(),
		Filename:         filename,
		Organization:     row.Organization,
		Period:           row.Period,
		DocumentationURL: row.DocumentationURL,
		RawValues:        model.RawValueMap(row.Values),
		Scores:           model.ScoreMap(scores),
		TotalScore:       total,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	key := fmt.Sprintf("%s_%s", eval.ID, sanitizeFilename(filename))
	blobURL, err := uc.storage.Upload(ctx, key, data, contentTypeFor(filename))
	if err != nil {
		return nil, err
	}
	eval.BlobKey = key
	eval.BlobURL = blobURL

	if err := uc.store.Create(eval); err != nil {
		// compensate: the blob would otherwise be orphaned
		if cleanupErr := uc.storage.Delete(ctx, key); cleanupErr != nil {
			log.Printf("orphaned blob %s could not be removed: %v", key, cleanupErr)
		}
		return nil, &PersistenceError{Op: "insert evaluation", Err: err}
	}

	result := &dto.UploadResultDTO{Evaluation: toDTO(eval)}
	for _, rej := range report.Rejected {
		result.RejectedRows = append(result.RejectedRows, dto.RejectedRowDTO{Line: rej.Line, Reason: rej.Reason})
	}
	return result, nil
}

// List returns the stored evaluations, newest first, with pagination meta.
func (uc *EvaluationUsecase) List(page, pageSize int) ([]dto.EvaluationDTO, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	evals, err := uc.store.List()
	if err != nil {
		return nil, nil, &PersistenceError{Op: "list evaluations", Err: err}
	}

	total := len(evals)
	from := (page - 1) * pageSize
	if from > total {
		from = total
	}
	to := from + pageSize
	if to > total {
		to = total
	}

	out := make([]dto.EvaluationDTO, 0, to-from)
	for _, eval := range evals[from:to] {
		out = append(out, toDTO(&eval))
	}
	totalPages := int64((total + pageSize - 1) / pageSize)
	pagination := &response.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		TotalItems: int64(total),
		HasMore:    to < total,
		From:       from + 1,
		To:         to,
	}
	if to == from {
		pagination.From = 0
		pagination.To = 0
	}
	return out, pagination, nil
}

func (uc *EvaluationUsecase) Get(id string) (*dto.EvaluationDTO, error) {
	eval, err := uc.store.FindByID(id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &PersistenceError{Op: "find evaluation", Err: err}
	}
	d := toDTO(eval)
	return &d, nil
}

// Delete removes the blob first, then the row. A failed blob delete keeps the
// row so it never points nowhere silently; a failed row delete after the blob
// is gone is surfaced as an inconsistency. Unknown ids are a no-op.
func (uc *EvaluationUsecase) Delete(ctx context.Context, id string) error {
	eval, err := uc.store.FindByID(id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return &PersistenceError{Op: "find evaluation", Err: err}
	}

	if err := uc.storage.Delete(ctx, eval.BlobKey); err != nil {
		return err
	}
	if err := uc.store.DeleteByID(id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return &InconsistencyError{ID: id, Err: err}
	}
	return nil
}

// ExportCSV builds the consolidated download: one row per evaluation, one
// column per indicator plus the total and metadata.
func (uc *EvaluationUsecase) ExportCSV() ([]byte, error) {
	evals, err := uc.store.List()
	if err != nil {
		return nil, &PersistenceError{Op: "list evaluations", Err: err}
	}

	names := indicator.Names(uc.defs)
	header := append([]string{"organization", "period", "filename", "uploaded_at"}, names...)
	header = append(header, "total_score", "blob_url")

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, eval := range evals {
		record := []string{
			eval.Organization,
			eval.Period,
			eval.Filename,
			eval.CreatedAt.UTC().Format(time.RFC3339),
		}
		for _, name := range names {
			record = append(record, formatScore(eval.Scores[name]))
		}
		record = append(record, formatScore(eval.TotalScore), eval.BlobURL)
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Summary aggregates the stored evaluations for the dashboard charts.
func (uc *EvaluationUsecase) Summary() (*dto.SummaryDTO, error) {
	evals, err := uc.store.List()
	if err != nil {
		return nil, &PersistenceError{Op: "list evaluations", Err: err}
	}

	summary := &dto.SummaryDTO{
		Evaluations: len(evals),
		MaxTotal:    indicator.MaxTotal(uc.defs),
	}
	for _, name := range indicator.Names(uc.defs) {
		avg := 0.0
		if len(evals) > 0 {
			for _, eval := range evals {
				avg += eval.Scores[name]
			}
			avg /= float64(len(evals))
		}
		summary.IndicatorAverages = append(summary.IndicatorAverages, dto.IndicatorAverageDTO{
			Indicator: name,
			Average:   avg,
		})
	}
	for _, eval := range evals {
		summary.Ranking = append(summary.Ranking, dto.RankingEntryDTO{
			Organization: eval.Organization,
			Period:       eval.Period,
			TotalScore:   eval.TotalScore,
		})
	}
	sort.SliceStable(summary.Ranking, func(i, j int) bool {
		return summary.Ranking[i].TotalScore > summary.Ranking[j].TotalScore
	})
	return summary, nil
}

func toDTO(eval *model.Evaluation) dto.EvaluationDTO {
	return dto.EvaluationDTO{
		ID:               eval.ID,
		Filename:         eval.Filename,
		Organization:     eval.Organization,
		Period:           eval.Period,
		DocumentationURL: eval.DocumentationURL,
		RawValues:        eval.RawValues,
		Scores:           eval.Scores,
		TotalScore:       eval.TotalScore,
		BlobURL:          eval.BlobURL,
		CreatedAt:        eval.CreatedAt,
		UpdatedAt:        eval.UpdatedAt,
	}
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
