package handler

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/oac-climate/cix-analyzer/internal/middleware"
	"github.com/oac-climate/cix-analyzer/internal/parser"
	"github.com/oac-climate/cix-analyzer/internal/repository"
	"github.com/oac-climate/cix-analyzer/internal/service"
	"github.com/oac-climate/cix-analyzer/internal/usecase"
	"github.com/oac-climate/cix-analyzer/internal/util"
)

const maxReportSize = 5 * 1024 * 1024

type EvaluationHandler struct {
	uc *usecase.EvaluationUsecase
}

func NewEvaluationHandler(uc *usecase.EvaluationUsecase) *EvaluationHandler {
	return &EvaluationHandler{uc: uc}
}

func (h *EvaluationHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/evaluations", middleware.RateLimiter(1, 4*time.Second), h.Upload)
	app.Get("/evaluations", h.List)
	app.Get("/evaluations/summary", h.Summary)
	app.Get("/evaluations/export.csv", h.Export)
	app.Get("/evaluations/:id", h.Get)
	app.Delete("/evaluations/:id", h.Delete)
}

func (h *EvaluationHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("report")
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "report file is required",
		}, err)
	}
	if file.Size > maxReportSize {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusRequestEntityTooLarge,
			Message: "report file is too large (max 5MB)",
		}, nil)
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".csv" && ext != ".xlsx" {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusUnsupportedMediaType,
			Message: fmt.Sprintf("unsupported report type %q (want .csv or .xlsx)", ext),
		}, nil)
	}

	src, err := file.Open()
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "cannot read report file",
		}, err)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "cannot read report file",
		}, err)
	}

	result, err := h.uc.Upload(c.UserContext(), file.Filename, data)
	if err != nil {
		return h.stageError(c, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusCreated,
		Message: "Evaluation stored",
		Data:    result,
	})
}

func (h *EvaluationHandler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 50)

	evals, pagination, err := h.uc.List(page, pageSize)
	if err != nil {
		return h.stageError(c, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:       fiber.StatusOK,
		Message:    "Success list evaluations",
		Data:       evals,
		Pagination: pagination,
	})
}

func (h *EvaluationHandler) Get(c *fiber.Ctx) error {
	eval, err := h.uc.Get(c.Params("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusNotFound,
			Message: "evaluation not found",
		}, nil)
	}
	if err != nil {
		return h.stageError(c, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusOK,
		Message: "Success get evaluation",
		Data:    eval,
	})
}

func (h *EvaluationHandler) Delete(c *fiber.Ctx) error {
	if err := h.uc.Delete(c.UserContext(), c.Params("id")); err != nil {
		return h.stageError(c, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusOK,
		Message: "Evaluation deleted",
	})
}

func (h *EvaluationHandler) Export(c *fiber.Ctx) error {
	out, err := h.uc.ExportCSV()
	if err != nil {
		return h.stageError(c, err)
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="cix_evaluations.csv"`)
	return c.Send(out)
}

func (h *EvaluationHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.uc.Summary()
	if err != nil {
		return h.stageError(c, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusOK,
		Message: "Success get summary",
		Data:    summary,
	})
}

// stageError maps domain errors to status codes, always naming the failed
// stage in the user-visible message.
func (h *EvaluationHandler) stageError(c *fiber.Ctx, err error) error {
	var mismatch *parser.SchemaMismatchError
	var storageErr *service.StorageError
	var persistErr *usecase.PersistenceError
	var inconsistency *usecase.InconsistencyError

	switch {
	case errors.As(err, &mismatch):
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusUnprocessableEntity,
			Message: fmt.Sprintf("parsing failed: %s", mismatch.Error()),
		}, err)
	case errors.As(err, &inconsistency):
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadGateway,
			Message: fmt.Sprintf("delete left an inconsistent record: %s", inconsistency.Error()),
		}, err)
	case errors.As(err, &storageErr):
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadGateway,
			Message: fmt.Sprintf("file storage failed: %s", storageErr.Error()),
		}, err)
	case errors.As(err, &persistErr):
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadGateway,
			Message: fmt.Sprintf("database operation failed: %s", persistErr.Error()),
		}, err)
	default:
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusUnprocessableEntity,
			Message: err.Error(),
		}, err)
	}
}
