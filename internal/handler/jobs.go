package handler

import (
	"context"
	"errors"
	"net/http"

	"currencyapi/internal/service"
	"currencyapi/internal/util"

	"github.com/gin-gonic/gin"
)

// JobRunner the background jobs that can be triggered by hand
type JobRunner interface {
	RunFetch(ctx context.Context) (service.JobStatus, error)
	RunApply(ctx context.Context) (service.JobStatus, error)
	Status() map[string]service.JobStatus
}

// JobHandler manual job triggers
type JobHandler struct {
	jobs JobRunner
}

func NewJobHandler(jobs JobRunner) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Fetch runs the feed download now
func (h *JobHandler) Fetch(c *gin.Context) {
	// a disconnecting client must not cut the snapshot write short
	st, err := h.jobs.RunFetch(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		util.ServerError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, st)
}

// Apply runs reconciliation now
func (h *JobHandler) Apply(c *gin.Context) {
	st, err := h.jobs.RunApply(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, service.ErrMalformedFeed):
		c.JSON(http.StatusUnprocessableEntity, util.Response{Detail: err.Error()})
	case err != nil:
		util.ServerError(c, err.Error())
	default:
		c.JSON(http.StatusOK, st)
	}
}

// Status last outcome of each job
func (h *JobHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.Status())
}
