package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// QueueStats reports per-status counts across all three queues, for
// dashboards and on-call triage.
func (r *Router) QueueStats(c *gin.Context) {
	ctx := c.Request.Context()

	notifications, err := r.queue.CountByStatus(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	webhooks, err := r.events.CountByStatus(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	reconciliation, err := r.reconJob.CountByStatus(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications":  notifications,
		"webhooks":       webhooks,
		"reconciliation": reconciliation,
	})
}

// ListReconciliationJobs returns drift jobs still needing automation or an
// operator, oldest first.
func (r *Router) ListReconciliationJobs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	jobs, err := r.reconJob.ListOpen(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}
