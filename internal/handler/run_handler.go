package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-insights/internal/dto"
	"github.com/noah-isme/classroom-insights/internal/models"
	"github.com/noah-isme/classroom-insights/internal/service"
	appErrors "github.com/noah-isme/classroom-insights/pkg/errors"
	"github.com/noah-isme/classroom-insights/pkg/response"
)

// RunHandler exposes analysis run endpoints.
type RunHandler struct {
	runs    *service.RunService
	reports *service.ReportQueryService
}

// NewRunHandler constructs the handler.
func NewRunHandler(runs *service.RunService, reports *service.ReportQueryService) *RunHandler {
	return &RunHandler{runs: runs, reports: reports}
}

// Create godoc
// @Summary Start an analysis run
// @Description Queue a classroom analysis run for the selected scope
// @Tags Runs
// @Accept json
// @Produce json
// @Param payload body dto.RunRequest true "Run parameters"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /runs [post]
func (h *RunHandler) Create(c *gin.Context) {
	var req dto.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run payload"))
		return
	}

	email := ""
	if claims := claimsFromContext(c); claims != nil {
		email = claims.Email
	}

	res, err := h.runs.CreateRun(c.Request.Context(), req, email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, res, nil)
}

// Status godoc
// @Summary Get run status
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /runs/{id} [get]
func (h *RunHandler) Status(c *gin.Context) {
	res, err := h.runs.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// List godoc
// @Summary List recent runs
// @Tags Runs
// @Produce json
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /runs [get]
func (h *RunHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	res, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Reports godoc
// @Summary List the stored reports of a run
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Param courseId query string false "Filter by course"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /runs/{id}/reports [get]
func (h *RunHandler) Reports(c *gin.Context) {
	res, err := h.reports.List(c.Request.Context(), c.Param("id"), c.Query("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Categories godoc
// @Summary Get the category grouping of a run
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /runs/{id}/categories [get]
func (h *RunHandler) Categories(c *gin.Context) {
	res, err := h.reports.Categories(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Download godoc
// @Summary Download a run's summary file via signed token
// @Tags Runs
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /export/{token} [get]
func (h *RunHandler) Download(c *gin.Context) {
	result, err := h.runs.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck

	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat summary file"))
		return
	}

	mime := "text/csv"
	if result.Format == models.SummaryFormatPDF {
		mime = "application/pdf"
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), mime, result.File, nil)
}
