package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/talentflowlabs/talentflow-core/internal/config"
	"github.com/talentflowlabs/talentflow-core/internal/jobrun"
	"github.com/talentflowlabs/talentflow-core/internal/lock"
	"github.com/talentflowlabs/talentflow-core/internal/telemetry"
	"github.com/talentflowlabs/talentflow-core/pkg/mailclient"
)

// JobName is the lock resource and JobRun name for this worker.
const JobName = "notification_dispatch"

// Store is the worker's view of the queue.
type Store interface {
	ClaimDue(ctx context.Context, limit int) ([]Job, error)
	MarkSent(ctx context.Context, job *Job) error
	MarkFailed(ctx context.Context, job *Job, cause error, permanent bool) error
	Depth(ctx context.Context) (int64, error)
}

// Mailer is the outbound transport.
type Mailer interface {
	Send(ctx context.Context, msg mailclient.Message) error
}

// Worker claims due jobs, renders and dispatches them, and updates job
// state. Only one instance runs at a time, gated by the lock manager.
type Worker struct {
	store    Store
	mailer   Mailer
	renderer Renderer
	locks    lock.Locker
	runs     jobrun.RunRecorder
	logger   *zap.Logger

	instanceID string
	lockTTL    time.Duration
	batchSize  int
	interval   time.Duration
}

func NewWorker(
	store Store,
	mailer Mailer,
	renderer Renderer,
	locks lock.Locker,
	runs jobrun.RunRecorder,
	cfg *config.Config,
	instanceID jobrun.InstanceID,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		store:      store,
		mailer:     mailer,
		renderer:   renderer,
		locks:      locks,
		runs:       runs,
		logger:     logger.Named("notification.worker"),
		instanceID: string(instanceID),
		lockTTL:    cfg.NotificationLockTTL,
		batchSize:  cfg.NotificationBatchSize,
		interval:   cfg.NotificationInterval,
	}
}

func (w *Worker) Name() string {
	return JobName
}

// Run is the in-process periodic trigger.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx, jobrun.TriggerScheduler); err != nil {
				w.logger.Error("notification_run_failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes one claim-and-process pass. Lock denial is a clean exit
// recorded as a locked run, not an error.
func (w *Worker) RunOnce(ctx context.Context, trigger jobrun.TriggerSource) (*jobrun.Run, error) {
	granted, err := w.locks.Acquire(ctx, JobName, w.instanceID, w.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !granted {
		telemetry.WorkerRunsLocked.WithLabelValues(JobName).Inc()
		return w.runs.RecordLocked(ctx, JobName, trigger, w.instanceID)
	}
	defer func() {
		if err := w.locks.Release(context.WithoutCancel(ctx), JobName, w.instanceID); err != nil {
			w.logger.Warn("lock_release_failed", zap.Error(err))
		}
	}()

	if _, err := w.runs.FinalizeStale(ctx, JobName, w.lockTTL); err != nil {
		w.logger.Warn("finalize_stale_failed", zap.Error(err))
	}

	depthBefore, err := w.store.Depth(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}

	run, err := w.runs.Start(ctx, JobName, trigger, w.instanceID, depthBefore)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	outcome := w.processBatch(ctx)

	if depthAfter, err := w.store.Depth(ctx); err == nil {
		outcome.QueueDepthAfter = depthAfter
		telemetry.QueueDepth.WithLabelValues("notification").Set(float64(depthAfter))
	}

	if err := w.runs.Finish(ctx, run, outcome); err != nil {
		w.logger.Error("finish_run_failed", zap.Error(err), zap.Int64("run_id", run.ID))
	}
	return run, nil
}

// processBatch isolates each item's outcome; only infrastructure failures
// (claim itself failing) produce an error summary and fail the run.
func (w *Worker) processBatch(ctx context.Context) jobrun.Outcome {
	var outcome jobrun.Outcome

	jobs, err := w.store.ClaimDue(ctx, w.batchSize)
	if err != nil {
		outcome.ErrorSummary = fmt.Sprintf("claim: %v", err)
		return outcome
	}

	for i := range jobs {
		job := &jobs[i]
		if err := w.dispatch(ctx, job); err != nil {
			outcome.Failed++
			telemetry.WorkerFailed.WithLabelValues(JobName).Inc()
			w.logger.Warn("notification_dispatch_failed",
				zap.Error(err),
				zap.Int64("job_id", job.ID),
				zap.String("type", string(job.Type)),
				zap.Int("attempts", job.Attempts),
			)
			continue
		}
		outcome.Processed++
		telemetry.WorkerProcessed.WithLabelValues(JobName).Inc()
	}
	return outcome
}

func (w *Worker) dispatch(ctx context.Context, job *Job) error {
	msg, err := w.renderer.Render(job)
	if err != nil {
		// A payload that cannot be rendered will never succeed.
		if markErr := w.store.MarkFailed(ctx, job, err, true); markErr != nil {
			return fmt.Errorf("mark failed: %w (original error: %v)", markErr, err)
		}
		return err
	}

	if err := w.mailer.Send(ctx, msg); err != nil {
		permanent := isPermanentSendError(err)
		if markErr := w.store.MarkFailed(ctx, job, err, permanent); markErr != nil {
			return fmt.Errorf("mark failed: %w (original error: %v)", markErr, err)
		}
		return err
	}

	return w.store.MarkSent(ctx, job)
}

// isPermanentSendError classifies transport failures. Auth failures and
// rejected recipients cannot succeed on retry; timeouts, rate limits and
// 5xx-equivalents can.
func isPermanentSendError(err error) bool {
	var apiErr *mailclient.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Status {
	case 400, 401, 403, 404, 422:
		return true
	}
	return false
}
