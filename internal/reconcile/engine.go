package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/talentflowlabs/talentflow-core/internal/config"
	"github.com/talentflowlabs/talentflow-core/internal/domain/booking"
	"github.com/talentflowlabs/talentflow-core/internal/jobrun"
	"github.com/talentflowlabs/talentflow-core/internal/lock"
	"github.com/talentflowlabs/talentflow-core/internal/telemetry"
	"github.com/talentflowlabs/talentflow-core/pkg/atsclient"
	"github.com/talentflowlabs/talentflow-core/pkg/calendarclient"
)

// EngineJobName is the lock resource and JobRun name for this worker.
const EngineJobName = "reconciliation"

const entityBooking = "booking"

// CalendarAPI is the engine's view of the calendar provider.
type CalendarAPI interface {
	GetEvent(ctx context.Context, eventID string) (*calendarclient.Event, error)
	CreateEvent(ctx context.Context, req calendarclient.CreateEventRequest) (*calendarclient.Event, error)
}

// ATSAPI is the engine's view of the applicant tracking system.
type ATSAPI interface {
	GetNote(ctx context.Context, noteID string) (*atsclient.Note, error)
	CreateNote(ctx context.Context, req atsclient.CreateNoteRequest, idempotencyKey string) (*atsclient.Note, error)
	GetApplication(ctx context.Context, applicationID string) (*atsclient.Application, error)
}

// Ledger is the engine's view of the job store.
type Ledger interface {
	Open(ctx context.Context, entityType string, entityID int64, reason Reason, detail string) (*Job, bool, error)
	RecordAttempt(ctx context.Context, job *Job, cause error) error
	MarkRepaired(ctx context.Context, job *Job, note string) error
	Escalate(ctx context.Context, job *Job, cause string) error
	OpenCount(ctx context.Context) (int64, error)
}

// Engine periodically compares active bookings against calendar and ATS
// state, opens a job per detected drift, repairs what is safe to repair and
// escalates what is not. Missing external resources are recreated with
// provider-side idempotency keys so a repeated repair cannot duplicate
// anything; contradictory states are never touched automatically.
type Engine struct {
	bookings booking.Repository
	jobs     Ledger
	calendar CalendarAPI
	ats      ATSAPI
	locks    lock.Locker
	runs     jobrun.RunRecorder
	logger   *zap.Logger

	instanceID string
	lockTTL    time.Duration
	batchSize  int
	interval   time.Duration
}

func NewEngine(
	bookings booking.Repository,
	jobs Ledger,
	calendar CalendarAPI,
	ats ATSAPI,
	locks lock.Locker,
	runs jobrun.RunRecorder,
	cfg *config.Config,
	instanceID jobrun.InstanceID,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		bookings:   bookings,
		jobs:       jobs,
		calendar:   calendar,
		ats:        ats,
		locks:      locks,
		runs:       runs,
		logger:     logger.Named("reconcile.engine"),
		instanceID: string(instanceID),
		lockTTL:    cfg.ReconcileLockTTL,
		batchSize:  cfg.ReconcileBatchSize,
		interval:   cfg.ReconcileInterval,
	}
}

func (e *Engine) Name() string {
	return EngineJobName
}

// Run is the in-process periodic trigger.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.RunOnce(ctx, jobrun.TriggerScheduler); err != nil {
				e.logger.Error("reconcile_run_failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes one scan pass. Lock denial is a clean exit recorded as a
// locked run, not an error.
func (e *Engine) RunOnce(ctx context.Context, trigger jobrun.TriggerSource) (*jobrun.Run, error) {
	granted, err := e.locks.Acquire(ctx, EngineJobName, e.instanceID, e.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !granted {
		telemetry.WorkerRunsLocked.WithLabelValues(EngineJobName).Inc()
		return e.runs.RecordLocked(ctx, EngineJobName, trigger, e.instanceID)
	}
	defer func() {
		if err := e.locks.Release(context.WithoutCancel(ctx), EngineJobName, e.instanceID); err != nil {
			e.logger.Warn("lock_release_failed", zap.Error(err))
		}
	}()

	if _, err := e.runs.FinalizeStale(ctx, EngineJobName, e.lockTTL); err != nil {
		e.logger.Warn("finalize_stale_failed", zap.Error(err))
	}

	openBefore, err := e.jobs.OpenCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("open job count: %w", err)
	}

	run, err := e.runs.Start(ctx, EngineJobName, trigger, e.instanceID, openBefore)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	outcome := e.scan(ctx)

	if openAfter, err := e.jobs.OpenCount(ctx); err == nil {
		outcome.QueueDepthAfter = openAfter
		telemetry.QueueDepth.WithLabelValues("reconciliation").Set(float64(openAfter))
	}

	if err := e.runs.Finish(ctx, run, outcome); err != nil {
		e.logger.Error("finish_run_failed", zap.Error(err), zap.Int64("run_id", run.ID))
	}
	return run, nil
}

// scan walks active bookings and checks each against both providers. A
// booking with no drift is counted skipped; each drift handled, whether
// repaired, left open or escalated, counts once.
func (e *Engine) scan(ctx context.Context) jobrun.Outcome {
	var outcome jobrun.Outcome

	bookings, err := e.bookings.ListByStatus(ctx, []booking.Status{booking.StatusScheduled, booking.StatusConfirmed}, e.batchSize)
	if err != nil {
		outcome.ErrorSummary = fmt.Sprintf("list bookings: %v", err)
		return outcome
	}

	for _, b := range bookings {
		drifts, err := e.checkBooking(ctx, b)
		if err != nil {
			outcome.Failed++
			telemetry.WorkerFailed.WithLabelValues(EngineJobName).Inc()
			e.logger.Warn("reconcile_check_failed", zap.Error(err), zap.Int64("booking_id", b.ID))
			continue
		}
		if drifts == 0 {
			outcome.Skipped++
			continue
		}
		outcome.Processed += drifts
		telemetry.WorkerProcessed.WithLabelValues(EngineJobName).Inc()
	}
	return outcome
}

// checkBooking returns how many drifts it found and handled. Provider read
// failures abort the check so a flaky provider cannot masquerade as
// missing state.
func (e *Engine) checkBooking(ctx context.Context, b *booking.Booking) (int, error) {
	drifts := 0

	if b.CalendarEventID != "" {
		event, err := e.calendar.GetEvent(ctx, b.CalendarEventID)
		if err != nil {
			return drifts, fmt.Errorf("get calendar event: %w", err)
		}
		switch {
		case event == nil:
			drifts++
			if err := e.handleMissingEvent(ctx, b); err != nil {
				return drifts, err
			}
		case event.Canceled():
			drifts++
			if err := e.handleMismatch(ctx, b,
				fmt.Sprintf("booking is %s but calendar event %s is canceled", b.Status, b.CalendarEventID)); err != nil {
				return drifts, err
			}
		}
	}

	if b.ATSApplicationID != "" {
		app, err := e.ats.GetApplication(ctx, b.ATSApplicationID)
		if err != nil {
			return drifts, fmt.Errorf("get ats application: %w", err)
		}
		if app == nil || app.Status == "withdrawn" || app.Status == "rejected" {
			status := "missing"
			if app != nil {
				status = app.Status
				b.ExternalStatus = app.Status
			}
			drifts++
			if err := e.handleMismatch(ctx, b,
				fmt.Sprintf("booking is %s but ats application %s is %s", b.Status, b.ATSApplicationID, status)); err != nil {
				return drifts, err
			}
		} else if app.Status != b.ExternalStatus {
			b.ExternalStatus = app.Status
		}
	}

	if b.ATSNoteID != "" {
		note, err := e.ats.GetNote(ctx, b.ATSNoteID)
		if err != nil {
			return drifts, fmt.Errorf("get ats note: %w", err)
		}
		if note == nil {
			drifts++
			if err := e.handleMissingNote(ctx, b); err != nil {
				return drifts, err
			}
		}
	}

	if drifts == 0 {
		b.MarkSynced()
	}
	if err := e.bookings.Save(ctx, b); err != nil {
		return drifts, fmt.Errorf("save booking: %w", err)
	}
	return drifts, nil
}

func (e *Engine) handleMissingEvent(ctx context.Context, b *booking.Booking) error {
	job, created, err := e.jobs.Open(ctx, entityBooking, b.ID, ReasonCalendarEventMissing,
		fmt.Sprintf("calendar event %s not found", b.CalendarEventID))
	if err != nil {
		return fmt.Errorf("open job: %w", err)
	}
	if !created && job.Status != StatusOpen {
		return nil
	}

	event, err := e.calendar.CreateEvent(ctx, calendarclient.CreateEventRequest{
		Summary:    fmt.Sprintf("Interview: %s", b.CandidateName),
		StartsAt:   b.StartsAt,
		EndsAt:     b.EndsAt,
		Attendees:  []string{b.CandidateEmail, b.InterviewerEmail},
		RequestKey: fmt.Sprintf("booking-%d-%d", b.ID, b.StartsAt.Unix()),
	})
	if err != nil {
		return e.repairFailed(ctx, b, job, fmt.Errorf("recreate calendar event: %w", err))
	}

	b.CalendarEventID = event.ID
	if err := e.jobs.MarkRepaired(ctx, job, fmt.Sprintf("recreated calendar event %s", event.ID)); err != nil {
		return fmt.Errorf("mark repaired: %w", err)
	}

	e.logger.Info("calendar_event_recreated",
		zap.Int64("booking_id", b.ID),
		zap.String("calendar_event_id", event.ID),
	)
	return nil
}

func (e *Engine) handleMissingNote(ctx context.Context, b *booking.Booking) error {
	job, created, err := e.jobs.Open(ctx, entityBooking, b.ID, ReasonATSNoteMissing,
		fmt.Sprintf("ats note %s not found", b.ATSNoteID))
	if err != nil {
		return fmt.Errorf("open job: %w", err)
	}
	if !created && job.Status != StatusOpen {
		return nil
	}

	note, err := e.ats.CreateNote(ctx, atsclient.CreateNoteRequest{
		ApplicationID: b.ATSApplicationID,
		Body: fmt.Sprintf("Interview scheduled for %s with %s.",
			b.StartsAt.Format(time.RFC1123), b.InterviewerEmail),
	}, fmt.Sprintf("booking-%d-note", b.ID))
	if err != nil {
		return e.repairFailed(ctx, b, job, fmt.Errorf("recreate ats note: %w", err))
	}

	b.ATSNoteID = note.ID
	if err := e.jobs.MarkRepaired(ctx, job, fmt.Sprintf("recreated ats note %s", note.ID)); err != nil {
		return fmt.Errorf("mark repaired: %w", err)
	}

	e.logger.Info("ats_note_recreated",
		zap.Int64("booking_id", b.ID),
		zap.String("ats_note_id", note.ID),
	)
	return nil
}

// handleMismatch records contradictory state and flags the booking for an
// operator. The job is escalated immediately: there is no repair to retry.
func (e *Engine) handleMismatch(ctx context.Context, b *booking.Booking, detail string) error {
	job, created, err := e.jobs.Open(ctx, entityBooking, b.ID, ReasonStateMismatch, detail)
	if err != nil {
		return fmt.Errorf("open job: %w", err)
	}
	b.FlagForAttention(detail)
	if !created && job.Status != StatusOpen {
		return nil
	}

	if err := e.jobs.Escalate(ctx, job, detail); err != nil {
		return fmt.Errorf("escalate job: %w", err)
	}

	e.logger.Warn("state_mismatch_detected",
		zap.Int64("booking_id", b.ID),
		zap.String("detail", detail),
	)
	return nil
}

// repairFailed records the failed attempt and escalates once the budget is
// spent. The underlying error is returned so the scan counts the failure.
func (e *Engine) repairFailed(ctx context.Context, b *booking.Booking, job *Job, cause error) error {
	if err := e.jobs.RecordAttempt(ctx, job, cause); err != nil {
		e.logger.Error("record_attempt_failed", zap.Error(err), zap.Int64("job_id", job.ID))
	}
	if job.Attempts >= job.MaxAttempts {
		b.FlagForAttention(fmt.Sprintf("auto-repair gave up: %v", cause))
		if err := e.bookings.Save(ctx, b); err != nil {
			e.logger.Error("flag_booking_failed", zap.Error(err), zap.Int64("booking_id", b.ID))
		}
		if err := e.jobs.Escalate(ctx, job, cause.Error()); err != nil {
			e.logger.Error("escalate_failed", zap.Error(err), zap.Int64("job_id", job.ID))
		}
	}
	return cause
}
