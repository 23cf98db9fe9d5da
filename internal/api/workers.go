package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/talentflowlabs/talentflow-core/internal/jobrun"
)

// TriggerWorker runs one pass of the named worker synchronously and returns
// the run record. A trigger that loses the lock race gets a 409 with the
// locked run rather than an error.
func (r *Router) TriggerWorker(c *gin.Context) {
	name := c.Param("name")
	runner, ok := r.runners[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown worker: " + name})
		return
	}

	run, err := runner.RunOnce(c.Request.Context(), jobrun.TriggerManual)
	if err != nil {
		r.logger.Error("manual_trigger_failed", zap.Error(err), zap.String("job_name", name))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if run.Status == jobrun.StatusLocked {
		status = http.StatusConflict
	}
	c.JSON(status, run)
}

// ListRuns returns the recent execution history for one worker.
func (r *Router) ListRuns(c *gin.Context) {
	name := c.Param("name")
	if _, ok := r.runners[name]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown worker: " + name})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	runs, err := r.recorder.Recent(c.Request.Context(), name, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rate, err := r.recorder.FailureRate(c.Request.Context(), name, 24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_name": name, "runs": runs, "failure_rate_24h": rate})
}
