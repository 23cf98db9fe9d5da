package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/talentflowlabs/talentflow-core/internal/config"
	"github.com/talentflowlabs/talentflow-core/internal/domain/booking"
	"github.com/talentflowlabs/talentflow-core/internal/jobrun"
	"github.com/talentflowlabs/talentflow-core/internal/lock"
	"github.com/talentflowlabs/talentflow-core/internal/notification"
	"github.com/talentflowlabs/talentflow-core/internal/telemetry"
)

// ProcessorJobName is the lock resource and JobRun name for this worker.
const ProcessorJobName = "webhook_process"

// Calendar and ATS event types the processor acts on. Everything else is
// acknowledged and ignored.
const (
	EventCalendarCanceled    = "event_canceled"
	EventCalendarRescheduled = "event_rescheduled"
	EventATSAppUpdated       = "application_updated"
)

// EventSource is the processor's view of the store.
type EventSource interface {
	ClaimVerified(ctx context.Context, limit int) ([]Event, error)
	MarkProcessed(ctx context.Context, event *Event) error
	MarkFailed(ctx context.Context, event *Event, cause error) error
	Depth(ctx context.Context) (int64, error)
}

// Notifications is the processor's view of the notification queue.
type Notifications interface {
	Enqueue(ctx context.Context, key string, t notification.Type, et notification.EntityType, entityID int64, payload any, runAfter time.Time) (*notification.Job, bool, error)
	ScheduleReminders(ctx context.Context, b *booking.Booking) ([]*notification.Job, int, error)
	CancelForEntity(ctx context.Context, et notification.EntityType, entityID int64, types ...notification.Type) (int64, error)
}

// Processor drains verified events and applies their effects to bookings
// and the notification queue. Like the dispatch worker, only one instance
// runs at a time, gated by the lock manager.
type Processor struct {
	events        EventSource
	bookings      booking.Repository
	notifications Notifications
	locks         lock.Locker
	runs          jobrun.RunRecorder
	logger        *zap.Logger

	instanceID string
	lockTTL    time.Duration
	batchSize  int
	interval   time.Duration
}

func NewProcessor(
	events EventSource,
	bookings booking.Repository,
	notifications Notifications,
	locks lock.Locker,
	runs jobrun.RunRecorder,
	cfg *config.Config,
	instanceID jobrun.InstanceID,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		events:        events,
		bookings:      bookings,
		notifications: notifications,
		locks:         locks,
		runs:          runs,
		logger:        logger.Named("webhook.processor"),
		instanceID:    string(instanceID),
		lockTTL:       cfg.WebhookLockTTL,
		batchSize:     cfg.WebhookBatchSize,
		interval:      cfg.WebhookInterval,
	}
}

func (p *Processor) Name() string {
	return ProcessorJobName
}

// Run is the in-process periodic trigger.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx, jobrun.TriggerScheduler); err != nil {
				p.logger.Error("webhook_run_failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes one claim-and-process pass. Lock denial is a clean exit
// recorded as a locked run, not an error.
func (p *Processor) RunOnce(ctx context.Context, trigger jobrun.TriggerSource) (*jobrun.Run, error) {
	granted, err := p.locks.Acquire(ctx, ProcessorJobName, p.instanceID, p.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !granted {
		telemetry.WorkerRunsLocked.WithLabelValues(ProcessorJobName).Inc()
		return p.runs.RecordLocked(ctx, ProcessorJobName, trigger, p.instanceID)
	}
	defer func() {
		if err := p.locks.Release(context.WithoutCancel(ctx), ProcessorJobName, p.instanceID); err != nil {
			p.logger.Warn("lock_release_failed", zap.Error(err))
		}
	}()

	if _, err := p.runs.FinalizeStale(ctx, ProcessorJobName, p.lockTTL); err != nil {
		p.logger.Warn("finalize_stale_failed", zap.Error(err))
	}

	depthBefore, err := p.events.Depth(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}

	run, err := p.runs.Start(ctx, ProcessorJobName, trigger, p.instanceID, depthBefore)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	outcome := p.processBatch(ctx)

	if depthAfter, err := p.events.Depth(ctx); err == nil {
		outcome.QueueDepthAfter = depthAfter
		telemetry.QueueDepth.WithLabelValues("webhook").Set(float64(depthAfter))
	}

	if err := p.runs.Finish(ctx, run, outcome); err != nil {
		p.logger.Error("finish_run_failed", zap.Error(err), zap.Int64("run_id", run.ID))
	}
	return run, nil
}

func (p *Processor) processBatch(ctx context.Context) jobrun.Outcome {
	var outcome jobrun.Outcome

	events, err := p.events.ClaimVerified(ctx, p.batchSize)
	if err != nil {
		outcome.ErrorSummary = fmt.Sprintf("claim: %v", err)
		return outcome
	}

	for i := range events {
		event := &events[i]
		skipped, err := p.apply(ctx, event)
		if err != nil {
			outcome.Failed++
			telemetry.WorkerFailed.WithLabelValues(ProcessorJobName).Inc()
			p.logger.Warn("webhook_apply_failed",
				zap.Error(err),
				zap.Int64("event_id", event.ID),
				zap.String("provider", string(event.Provider)),
				zap.String("event_type", event.EventType),
				zap.Int("attempts", event.Attempts),
			)
			if markErr := p.events.MarkFailed(ctx, event, err); markErr != nil {
				p.logger.Error("mark_failed_failed", zap.Error(markErr), zap.Int64("event_id", event.ID))
			}
			if event.Attempts >= event.MaxAttempts {
				p.flagBooking(ctx, event, err)
			}
			continue
		}

		if err := p.events.MarkProcessed(ctx, event); err != nil {
			outcome.Failed++
			p.logger.Error("mark_processed_failed", zap.Error(err), zap.Int64("event_id", event.ID))
			continue
		}
		if skipped {
			outcome.Skipped++
		} else {
			outcome.Processed++
			telemetry.WorkerProcessed.WithLabelValues(ProcessorJobName).Inc()
		}
	}
	return outcome
}

// apply routes one event. The bool reports that the event was acknowledged
// without effect: an unrecognized type or an event no booking references.
func (p *Processor) apply(ctx context.Context, event *Event) (bool, error) {
	switch event.Provider {
	case ProviderCalendar:
		switch event.EventType {
		case EventCalendarCanceled:
			return p.applyCalendarCanceled(ctx, event)
		case EventCalendarRescheduled:
			return p.applyCalendarRescheduled(ctx, event)
		}
	case ProviderATS:
		if event.EventType == EventATSAppUpdated {
			return p.applyATSUpdated(ctx, event)
		}
	}

	p.logger.Info("webhook_event_ignored",
		zap.String("provider", string(event.Provider)),
		zap.String("event_type", event.EventType),
	)
	return true, nil
}

type calendarPayload struct {
	Data struct {
		EventID  string    `json:"event_id"`
		StartsAt time.Time `json:"starts_at"`
		EndsAt   time.Time `json:"ends_at"`
		Reason   string    `json:"reason"`
	} `json:"data"`
}

type atsPayload struct {
	Data struct {
		ApplicationID string `json:"application_id"`
		Status        string `json:"status"`
	} `json:"data"`
}

func (p *Processor) applyCalendarCanceled(ctx context.Context, event *Event) (bool, error) {
	var payload calendarPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return false, fmt.Errorf("decode calendar payload: %w", err)
	}

	b, err := p.bookings.FindByCalendarEventID(ctx, payload.Data.EventID)
	if err != nil {
		return false, fmt.Errorf("find booking: %w", err)
	}
	if b == nil {
		p.logger.Info("webhook_no_matching_booking",
			zap.String("calendar_event_id", payload.Data.EventID),
		)
		return true, nil
	}
	if b.Status == booking.StatusCanceled {
		return true, nil
	}

	if err := b.Cancel(); err != nil {
		// A completed interview whose calendar event gets canceled after
		// the fact is not actionable automatically.
		b.FlagForAttention(fmt.Sprintf("calendar event canceled but booking is %s", b.Status))
		if saveErr := p.bookings.Save(ctx, b); saveErr != nil {
			return false, fmt.Errorf("save booking: %w", saveErr)
		}
		return true, nil
	}
	if err := p.bookings.Save(ctx, b); err != nil {
		return false, fmt.Errorf("save booking: %w", err)
	}

	if _, err := p.notifications.CancelForEntity(ctx, notification.EntityBooking, b.ID, notification.TypeInterviewReminder); err != nil {
		return false, fmt.Errorf("cancel reminders: %w", err)
	}

	notice := notification.CancellationPayload{
		Recipient:     b.CandidateEmail,
		CandidateName: b.CandidateName,
		StartsAt:      b.StartsAt,
		Reason:        payload.Data.Reason,
	}
	key := notification.Key(notification.TypeBookingCanceled, notification.EntityBooking, b.ID)
	if _, _, err := p.notifications.Enqueue(ctx, key, notification.TypeBookingCanceled, notification.EntityBooking, b.ID, notice, time.Time{}); err != nil {
		return false, fmt.Errorf("enqueue cancellation notice: %w", err)
	}

	p.logger.Info("booking_canceled_from_webhook",
		zap.Int64("booking_id", b.ID),
		zap.String("calendar_event_id", payload.Data.EventID),
	)
	return false, nil
}

func (p *Processor) applyCalendarRescheduled(ctx context.Context, event *Event) (bool, error) {
	var payload calendarPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return false, fmt.Errorf("decode calendar payload: %w", err)
	}
	if payload.Data.StartsAt.IsZero() {
		return false, fmt.Errorf("reschedule event missing new start time")
	}

	b, err := p.bookings.FindByCalendarEventID(ctx, payload.Data.EventID)
	if err != nil {
		return false, fmt.Errorf("find booking: %w", err)
	}
	if b == nil {
		p.logger.Info("webhook_no_matching_booking",
			zap.String("calendar_event_id", payload.Data.EventID),
		)
		return true, nil
	}

	oldStart := b.StartsAt
	if err := b.Reschedule(payload.Data.StartsAt, payload.Data.EndsAt); err != nil {
		b.FlagForAttention(fmt.Sprintf("calendar event rescheduled but booking is %s", b.Status))
		if saveErr := p.bookings.Save(ctx, b); saveErr != nil {
			return false, fmt.Errorf("save booking: %w", saveErr)
		}
		return true, nil
	}
	if err := p.bookings.Save(ctx, b); err != nil {
		return false, fmt.Errorf("save booking: %w", err)
	}

	// Reminders anchored to the old slot must not fire.
	if _, err := p.notifications.CancelForEntity(ctx, notification.EntityBooking, b.ID, notification.TypeInterviewReminder); err != nil {
		return false, fmt.Errorf("cancel reminders: %w", err)
	}
	if _, _, err := p.notifications.ScheduleReminders(ctx, b); err != nil {
		return false, fmt.Errorf("reschedule reminders: %w", err)
	}

	notice := notification.ReschedulePayload{
		Recipient:     b.CandidateEmail,
		CandidateName: b.CandidateName,
		OldStartsAt:   oldStart,
		StartsAt:      b.StartsAt,
		EndsAt:        b.EndsAt,
	}
	// Keyed on the new slot so repeated deliveries collapse but a later
	// reschedule to a different time produces a fresh notice.
	key := notification.ReminderKey(notification.TypeBookingRescheduled, notification.EntityBooking, b.ID, b.StartsAt)
	if _, _, err := p.notifications.Enqueue(ctx, key, notification.TypeBookingRescheduled, notification.EntityBooking, b.ID, notice, time.Time{}); err != nil {
		return false, fmt.Errorf("enqueue reschedule notice: %w", err)
	}

	p.logger.Info("booking_rescheduled_from_webhook",
		zap.Int64("booking_id", b.ID),
		zap.Time("old_starts_at", oldStart),
		zap.Time("starts_at", b.StartsAt),
	)
	return false, nil
}

func (p *Processor) applyATSUpdated(ctx context.Context, event *Event) (bool, error) {
	var payload atsPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return false, fmt.Errorf("decode ats payload: %w", err)
	}

	b, err := p.bookings.FindByATSApplicationID(ctx, payload.Data.ApplicationID)
	if err != nil {
		return false, fmt.Errorf("find booking: %w", err)
	}
	if b == nil {
		p.logger.Info("webhook_no_matching_booking",
			zap.String("ats_application_id", payload.Data.ApplicationID),
		)
		return true, nil
	}

	b.ExternalStatus = payload.Data.Status

	// A withdrawn or rejected candidate has no interview to hold.
	cancelBooking := b.Active() && (payload.Data.Status == "withdrawn" || payload.Data.Status == "rejected")
	if cancelBooking {
		if err := b.Cancel(); err != nil {
			return false, fmt.Errorf("cancel booking: %w", err)
		}
	}
	if err := p.bookings.Save(ctx, b); err != nil {
		return false, fmt.Errorf("save booking: %w", err)
	}

	if cancelBooking {
		if _, err := p.notifications.CancelForEntity(ctx, notification.EntityBooking, b.ID, notification.TypeInterviewReminder); err != nil {
			return false, fmt.Errorf("cancel reminders: %w", err)
		}
		notice := notification.CancellationPayload{
			Recipient:     b.InterviewerEmail,
			CandidateName: b.CandidateName,
			StartsAt:      b.StartsAt,
			Reason:        fmt.Sprintf("application %s", payload.Data.Status),
		}
		key := notification.Key(notification.TypeBookingCanceled, notification.EntityBooking, b.ID)
		if _, _, err := p.notifications.Enqueue(ctx, key, notification.TypeBookingCanceled, notification.EntityBooking, b.ID, notice, time.Time{}); err != nil {
			return false, fmt.Errorf("enqueue cancellation notice: %w", err)
		}
	}

	p.logger.Info("booking_synced_from_ats",
		zap.Int64("booking_id", b.ID),
		zap.String("external_status", payload.Data.Status),
		zap.Bool("canceled", cancelBooking),
	)
	return false, nil
}

// flagBooking marks the affected booking for operator review once an event
// has exhausted its retries. Best effort: resolution failures are logged.
func (p *Processor) flagBooking(ctx context.Context, event *Event, cause error) {
	var b *booking.Booking
	var err error

	switch event.Provider {
	case ProviderCalendar:
		var payload calendarPayload
		if json.Unmarshal(event.Payload, &payload) == nil {
			b, err = p.bookings.FindByCalendarEventID(ctx, payload.Data.EventID)
		}
	case ProviderATS:
		var payload atsPayload
		if json.Unmarshal(event.Payload, &payload) == nil {
			b, err = p.bookings.FindByATSApplicationID(ctx, payload.Data.ApplicationID)
		}
	}
	if err != nil || b == nil {
		return
	}

	b.FlagForAttention(fmt.Sprintf("webhook %s exhausted retries: %v", event.EventType, cause))
	if err := p.bookings.Save(ctx, b); err != nil {
		p.logger.Error("flag_booking_failed", zap.Error(err), zap.Int64("booking_id", b.ID))
	}
}
