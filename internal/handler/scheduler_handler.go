package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartScheduler starts the retention scheduler and returns its status
func (h *Handlers) StartScheduler(c *gin.Context) {
	h.controlScheduler(c, h.scheduler.Start)
}

// StopScheduler stops the retention scheduler and returns its status. A
// purge in progress is cancelled.
func (h *Handlers) StopScheduler(c *gin.Context) {
	h.controlScheduler(c, h.scheduler.Stop)
}

func (h *Handlers) controlScheduler(c *gin.Context, action func() error) {
	if err := action(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, h.scheduler.Status())
}

// RunRetention purges expired reports now, outside the schedule
func (h *Handlers) RunRetention(c *gin.Context) {
	deleted, err := h.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, RetentionRunResponse{
		Deleted: deleted,
		Status:  h.scheduler.Status(),
	})
}

// GetSchedulerStatus returns the current scheduler status
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}
