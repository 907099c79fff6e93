package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smart-mail-router/internal/model"
	"smart-mail-router/internal/repository"
)

// GetReports returns reports with pagination, optionally filtered by status
func (h *Handlers) GetReports(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(repository.DefaultPageSize)))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > repository.MaxPageSize {
		limit = repository.DefaultPageSize
	}

	filter := repository.ReportFilter{
		Status: model.ReportStatus(c.Query("status")),
		Page:   page,
		Limit:  limit,
	}

	reports, total, err := h.store.ListReports(c.Request.Context(), filter)
	if err != nil {
		respondStoreError(c, err, "Failed to fetch reports")
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}

	c.JSON(http.StatusOK, ReportListResponse{
		Reports: reports,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
		},
	})
}

// GetReport returns a specific report
func (h *Handlers) GetReport(c *gin.Context) {
	id, ok := parseID(c, "report")
	if !ok {
		return
	}

	report, err := h.store.GetReport(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err, "Failed to fetch report")
		return
	}

	c.JSON(http.StatusOK, report)
}

// DeleteReport deletes a report
func (h *Handlers) DeleteReport(c *gin.Context) {
	id, ok := parseID(c, "report")
	if !ok {
		return
	}

	if err := h.store.DeleteReport(c.Request.Context(), id); err != nil {
		respondStoreError(c, err, "Failed to delete report")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Report deleted successfully",
	})
}

// PurgeReports deletes reports older than the requested number of days, or
// applies the configured retention period when none is given
func (h *Handlers) PurgeReports(c *gin.Context) {
	var req PurgeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "validation_error", "Invalid request body")
			return
		}
	}

	var (
		deleted int64
		err     error
	)
	if req.OlderThanDays != nil {
		deleted, err = h.store.DeleteReportsOlderThan(c.Request.Context(), *req.OlderThanDays)
	} else {
		deleted, err = h.store.PurgeExpiredReports(c.Request.Context())
	}
	if err != nil {
		respondStoreError(c, err, "Failed to purge reports")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Reports purged successfully",
		"deleted": deleted,
	})
}
