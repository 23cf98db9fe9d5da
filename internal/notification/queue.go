package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talentflowlabs/talentflow-core/internal/config"
	"github.com/talentflowlabs/talentflow-core/internal/domain/booking"
	"github.com/talentflowlabs/talentflow-core/pkg/snowflake"
)

// Queue is the durable store of outbound-message jobs.
type Queue struct {
	db     *gorm.DB
	ids    *snowflake.Node
	logger *zap.Logger

	maxAttempts   int
	backoffBase   time.Duration
	backoffCap    time.Duration
	backoffJitter float64
	staleGrace    time.Duration

	reminderOffsets []time.Duration
	digestMode      bool
}

func NewQueue(db *gorm.DB, ids *snowflake.Node, cfg *config.Config, logger *zap.Logger) *Queue {
	return &Queue{
		db:              db,
		ids:             ids,
		logger:          logger.Named("notification.queue"),
		maxAttempts:     cfg.MaxAttempts,
		backoffBase:     cfg.BackoffBase,
		backoffCap:      cfg.BackoffCap,
		backoffJitter:   cfg.BackoffJitter,
		staleGrace:      cfg.StaleClaimGrace,
		reminderOffsets: cfg.ReminderOffsets,
		digestMode:      cfg.NotificationDigestMode,
	}
}

// Enqueue inserts a job under the given idempotency key. A second enqueue
// with the same key is a no-op returning the existing job; the bool reports
// whether a new row was created.
func (q *Queue) Enqueue(ctx context.Context, key string, t Type, et EntityType, entityID int64, payload any, runAfter time.Time) (*Job, bool, error) {
	if q.digestMode {
		// The settings surface exposes a digest frequency, but no digest
		// flush job exists anywhere in the system; suppressing here would
		// strand the message. Send immediately and make the gap visible.
		q.logger.Warn("digest_mode_ignored",
			zap.String("idempotency_key", key),
			zap.String("type", string(t)),
		)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	if runAfter.IsZero() {
		runAfter = now
	}

	job := Job{
		ID:             q.ids.GenerateID(),
		IdempotencyKey: key,
		Type:           t,
		EntityType:     et,
		EntityID:       entityID,
		Status:         StatusPending,
		MaxAttempts:    q.maxAttempts,
		RunAfter:       runAfter.UTC(),
		Payload:        raw,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	result := q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(&job)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return &job, true, nil
	}

	existing, err := q.FindByKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// EnqueueResend creates a fresh job for an operator-triggered resend. The
// timestamp discriminator deliberately bypasses single-fire dedup.
func (q *Queue) EnqueueResend(ctx context.Context, t Type, et EntityType, entityID int64, payload any) (*Job, error) {
	key := ResendKey(t, et, entityID, time.Now())
	job, _, err := q.Enqueue(ctx, key, t, et, entityID, payload, time.Time{})
	return job, err
}

// ScheduleReminders enqueues the future reminder jobs for a confirmed
// booking. Offsets whose fire time has already passed are skipped rather
// than fired immediately; the skipped count is returned.
func (q *Queue) ScheduleReminders(ctx context.Context, b *booking.Booking) (created []*Job, skipped int, err error) {
	now := time.Now().UTC()

	for _, offset := range q.reminderOffsets {
		fireAt := b.StartsAt.Add(-offset)
		if !fireAt.After(now) {
			skipped++
			continue
		}

		payload := ReminderPayload{
			Recipient:     b.CandidateEmail,
			CandidateName: b.CandidateName,
			StartsAt:      b.StartsAt,
			Offset:        offset.String(),
		}
		key := ReminderKey(TypeInterviewReminder, EntityBooking, b.ID, fireAt)

		job, _, err := q.Enqueue(ctx, key, TypeInterviewReminder, EntityBooking, b.ID, payload, fireAt)
		if err != nil {
			return created, skipped, err
		}
		created = append(created, job)
	}
	return created, skipped, nil
}

// CancelForEntity cancels all still-pending jobs tied to an entity,
// optionally restricted to the given types. Used when a booking is canceled
// or rescheduled so stale reminders cannot fire.
func (q *Queue) CancelForEntity(ctx context.Context, et EntityType, entityID int64, types ...Type) (int64, error) {
	query := q.db.WithContext(ctx).Model(&Job{}).
		Where("entity_type = ? AND entity_id = ? AND status = ?", et, entityID, StatusPending)
	if len(types) > 0 {
		query = query.Where("type IN ?", types)
	}

	result := query.Updates(map[string]any{
		"status":     StatusCanceled,
		"updated_at": time.Now().UTC(),
	})
	return result.RowsAffected, result.Error
}

// ClaimDue atomically claims up to limit due jobs, transitioning them
// PENDING -> SENDING. Jobs stuck in SENDING past the stale grace period are
// re-eligible: their claimer either crashed or lost its lock TTL.
func (q *Queue) ClaimDue(ctx context.Context, limit int) ([]Job, error) {
	var jobs []Job
	now := time.Now().UTC()
	staleBefore := now.Add(-q.staleGrace)

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(
			`SELECT * FROM notification_jobs
			 WHERE (status = ? AND run_after <= ?)
			    OR (status = ? AND claimed_at < ?)
			 ORDER BY run_after ASC
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED`,
			StatusPending,
			now,
			StatusSending,
			staleBefore,
			limit,
		).Scan(&jobs).Error; err != nil {
			return err
		}

		if len(jobs) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(jobs))
		for i := range jobs {
			ids = append(ids, jobs[i].ID)
			jobs[i].Status = StatusSending
			jobs[i].Attempts++
			jobs[i].ClaimedAt = &now
		}

		return tx.Model(&Job{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     StatusSending,
				"attempts":   gorm.Expr("attempts + 1"),
				"claimed_at": now,
				"updated_at": now,
			}).Error
	})

	return jobs, err
}

// MarkSent finalizes a successful dispatch. The conditional write fails
// silently if another claimer already moved the row on, which is safe under
// the worker lock but defensive against manual dual-invocation.
func (q *Queue) MarkSent(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	return q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", job.ID, StatusSending).
		Updates(map[string]any{
			"status":     StatusSent,
			"sent_at":    now,
			"last_error": "",
			"updated_at": now,
		}).Error
}

// MarkFailed records a dispatch failure. Permanent failures and exhausted
// retry budgets go terminal FAILED; transient failures requeue as PENDING
// with exponential backoff plus jitter.
func (q *Queue) MarkFailed(ctx context.Context, job *Job, cause error, permanent bool) error {
	now := time.Now().UTC()

	if permanent || job.Attempts >= job.MaxAttempts {
		return q.db.WithContext(ctx).Model(&Job{}).
			Where("id = ? AND status = ?", job.ID, StatusSending).
			Updates(map[string]any{
				"status":     StatusFailed,
				"last_error": cause.Error(),
				"updated_at": now,
			}).Error
	}

	delay := nextBackoff(job.Attempts, q.backoffBase, q.backoffCap, q.backoffJitter)
	return q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", job.ID, StatusSending).
		Updates(map[string]any{
			"status":     StatusPending,
			"run_after":  now.Add(delay),
			"last_error": cause.Error(),
			"updated_at": now,
		}).Error
}

// FindByKey returns the job stored under an idempotency key, or nil.
func (q *Queue) FindByKey(ctx context.Context, key string) (*Job, error) {
	var job Job
	if err := q.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// Depth counts jobs currently waiting to be dispatched.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).Model(&Job{}).
		Where("status = ?", StatusPending).
		Count(&count).Error
	return count, err
}

// CountByStatus backs the queue stats surface.
func (q *Queue) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	type row struct {
		Status Status
		Count  int64
	}
	var rows []row
	if err := q.db.WithContext(ctx).Model(&Job{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[Status]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
