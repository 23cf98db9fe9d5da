package jobrun

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talentflowlabs/talentflow-core/pkg/snowflake"
)

// RunRecorder is the append-only execution history every periodic worker
// writes to.
type RunRecorder interface {
	// Start opens a run in running state.
	Start(ctx context.Context, jobName string, triggeredBy TriggerSource, instanceID string, queueDepthBefore int64) (*Run, error)

	// Finish finalizes the run. A non-empty ErrorSummary marks it failed.
	Finish(ctx context.Context, run *Run, outcome Outcome) error

	// RecordLocked writes an already-finalized locked run for a trigger
	// that lost the lock race.
	RecordLocked(ctx context.Context, jobName string, triggeredBy TriggerSource, instanceID string) (*Run, error)

	// FinalizeStale fails running rows older than maxAge (crash timeout).
	FinalizeStale(ctx context.Context, jobName string, maxAge time.Duration) (int64, error)
}

// Recorder is the database-backed RunRecorder.
type Recorder struct {
	db     *gorm.DB
	ids    *snowflake.Node
	logger *zap.Logger
}

func NewRecorder(db *gorm.DB, ids *snowflake.Node, logger *zap.Logger) *Recorder {
	return &Recorder{
		db:     db,
		ids:    ids,
		logger: logger.Named("jobrun"),
	}
}

func (r *Recorder) Start(ctx context.Context, jobName string, triggeredBy TriggerSource, instanceID string, queueDepthBefore int64) (*Run, error) {
	run := &Run{
		ID:               r.ids.GenerateID(),
		JobName:          jobName,
		Status:           StatusRunning,
		TriggeredBy:      triggeredBy,
		InstanceID:       instanceID,
		QueueDepthBefore: queueDepthBefore,
		StartedAt:        time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *Recorder) Finish(ctx context.Context, run *Run, outcome Outcome) error {
	now := time.Now().UTC()
	status := StatusCompleted
	if outcome.ErrorSummary != "" {
		status = StatusFailed
	}

	// Finalize only if the row is still running so a crash-timeout sweep
	// racing a slow worker cannot overwrite a finalized run.
	result := r.db.WithContext(ctx).Model(&Run{}).
		Where("id = ? AND status = ?", run.ID, StatusRunning).
		Updates(map[string]any{
			"status":            status,
			"processed":         outcome.Processed,
			"failed":            outcome.Failed,
			"skipped":           outcome.Skipped,
			"queue_depth_after": outcome.QueueDepthAfter,
			"error_summary":     outcome.ErrorSummary,
			"finished_at":       now,
		})
	if result.Error != nil {
		return result.Error
	}

	run.Status = status
	run.Processed = outcome.Processed
	run.Failed = outcome.Failed
	run.Skipped = outcome.Skipped
	run.QueueDepthAfter = outcome.QueueDepthAfter
	run.ErrorSummary = outcome.ErrorSummary
	run.FinishedAt = &now
	return nil
}

func (r *Recorder) RecordLocked(ctx context.Context, jobName string, triggeredBy TriggerSource, instanceID string) (*Run, error) {
	now := time.Now().UTC()
	run := &Run{
		ID:          r.ids.GenerateID(),
		JobName:     jobName,
		Status:      StatusLocked,
		TriggeredBy: triggeredBy,
		InstanceID:  instanceID,
		StartedAt:   now,
		FinishedAt:  &now,
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// FinalizeStale marks running rows older than maxAge as failed. A run only
// stays in running state past its worker's lock TTL when the worker crashed
// without finalizing.
func (r *Recorder) FinalizeStale(ctx context.Context, jobName string, maxAge time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-maxAge)

	result := r.db.WithContext(ctx).Model(&Run{}).
		Where("job_name = ? AND status = ? AND started_at < ?", jobName, StatusRunning, cutoff).
		Updates(map[string]any{
			"status":        StatusFailed,
			"error_summary": "crash_timeout",
			"finished_at":   now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		r.logger.Warn("job_runs_crash_finalized",
			zap.String("job_name", jobName),
			zap.Int64("count", result.RowsAffected),
		)
	}
	return result.RowsAffected, nil
}

// FailureRate reports the share of failed runs for a job over the window.
// The ops surface uses the 24h rate as a health signal.
func (r *Recorder) FailureRate(ctx context.Context, jobName string, window time.Duration) (float64, error) {
	since := time.Now().UTC().Add(-window)

	var total, failed int64
	if err := r.db.WithContext(ctx).Model(&Run{}).
		Where("job_name = ? AND started_at >= ? AND status IN ?", jobName, since,
			[]Status{StatusCompleted, StatusFailed}).
		Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	if err := r.db.WithContext(ctx).Model(&Run{}).
		Where("job_name = ? AND started_at >= ? AND status = ?", jobName, since, StatusFailed).
		Count(&failed).Error; err != nil {
		return 0, err
	}
	return float64(failed) / float64(total), nil
}

// Recent returns the latest finalized runs for a job, newest first.
func (r *Recorder) Recent(ctx context.Context, jobName string, limit int) ([]*Run, error) {
	var runs []*Run
	query := r.db.WithContext(ctx).
		Where("job_name = ?", jobName).
		Order("started_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
