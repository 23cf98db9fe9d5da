package webhook

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talentflowlabs/talentflow-core/internal/config"
	"github.com/talentflowlabs/talentflow-core/pkg/snowflake"
)

// EventStore is the durable store of inbound events.
type EventStore struct {
	db  *gorm.DB
	ids *snowflake.Node

	staleGrace time.Duration
}

func NewEventStore(db *gorm.DB, ids *snowflake.Node, cfg *config.Config) *EventStore {
	return &EventStore{
		db:         db,
		ids:        ids,
		staleGrace: cfg.StaleClaimGrace,
	}
}

// Insert persists the event. The bool reports whether a new row was
// created; a dedup-key conflict returns the existing row instead.
func (s *EventStore) Insert(ctx context.Context, event *Event) (*Event, bool, error) {
	now := time.Now().UTC()
	event.ID = s.ids.GenerateID()
	event.CreatedAt = now
	event.UpdatedAt = now

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return event, true, nil
	}

	existing, err := s.FindByDedupKey(ctx, event.DedupKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *EventStore) FindByDedupKey(ctx context.Context, key string) (*Event, error) {
	var event Event
	if err := s.db.WithContext(ctx).Where("dedup_key = ?", key).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// ClaimVerified atomically claims up to limit events awaiting processing.
// Only verified events are eligible; events stuck in processing past the
// stale grace period are reclaimed.
func (s *EventStore) ClaimVerified(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	now := time.Now().UTC()
	staleBefore := now.Add(-s.staleGrace)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(
			`SELECT * FROM webhook_events
			 WHERE verified = TRUE
			   AND (status = ? OR (status = ? AND claimed_at < ?))
			 ORDER BY created_at ASC
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED`,
			StatusReceived,
			StatusProcessing,
			staleBefore,
			limit,
		).Scan(&events).Error; err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for i := range events {
			ids = append(ids, events[i].ID)
			events[i].Status = StatusProcessing
			events[i].Attempts++
			events[i].ClaimedAt = &now
		}

		return tx.Model(&Event{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     StatusProcessing,
				"attempts":   gorm.Expr("attempts + 1"),
				"claimed_at": now,
				"updated_at": now,
			}).Error
	})

	return events, err
}

// MarkProcessed finalizes a successfully applied event.
func (s *EventStore) MarkProcessed(ctx context.Context, event *Event) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&Event{}).
		Where("id = ? AND status = ?", event.ID, StatusProcessing).
		Updates(map[string]any{
			"status":       StatusProcessed,
			"processed_at": now,
			"last_error":   "",
			"updated_at":   now,
		}).Error
}

// MarkFailed records a processing failure: back to received for retry, or
// terminal failed once attempts are exhausted.
func (s *EventStore) MarkFailed(ctx context.Context, event *Event, cause error) error {
	now := time.Now().UTC()
	next := StatusReceived
	if event.Attempts >= event.MaxAttempts {
		next = StatusFailed
	}

	return s.db.WithContext(ctx).Model(&Event{}).
		Where("id = ? AND status = ?", event.ID, StatusProcessing).
		Updates(map[string]any{
			"status":     next,
			"last_error": cause.Error(),
			"updated_at": now,
		}).Error
}

// Depth counts verified events awaiting processing.
func (s *EventStore) Depth(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Event{}).
		Where("verified = TRUE AND status = ?", StatusReceived).
		Count(&count).Error
	return count, err
}

// CountByStatus backs the queue stats surface.
func (s *EventStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	type row struct {
		Status Status
		Count  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&Event{}).
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
