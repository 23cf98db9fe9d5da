package reconcile

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talentflowlabs/talentflow-core/internal/config"
	"github.com/talentflowlabs/talentflow-core/pkg/snowflake"
)

// JobStore persists reconciliation jobs.
type JobStore struct {
	db  *gorm.DB
	ids *snowflake.Node

	maxAttempts int
}

func NewJobStore(db *gorm.DB, ids *snowflake.Node, cfg *config.Config) *JobStore {
	return &JobStore{
		db:          db,
		ids:         ids,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Open records detected drift. A second detection of the same live drift is
// a no-op returning the existing job; the bool reports whether a new row
// was created.
func (s *JobStore) Open(ctx context.Context, entityType string, entityID int64, reason Reason, detail string) (*Job, bool, error) {
	now := time.Now().UTC()
	job := Job{
		ID:          s.ids.GenerateID(),
		EntityType:  entityType,
		EntityID:    entityID,
		Reason:      reason,
		DedupKey:    DedupKeyFor(entityType, entityID, reason),
		Status:      StatusOpen,
		Detail:      detail,
		MaxAttempts: s.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedup_key"}},
		DoNothing: true,
	}).Create(&job)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return &job, true, nil
	}

	existing, err := s.FindByDedupKey(ctx, job.DedupKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *JobStore) FindByDedupKey(ctx context.Context, key string) (*Job, error) {
	var job Job
	if err := s.db.WithContext(ctx).Where("dedup_key = ?", key).First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// RecordAttempt bumps the repair counter after a failed repair. The job
// stays open for the next scan.
func (s *JobStore) RecordAttempt(ctx context.Context, job *Job, cause error) error {
	job.Attempts++
	return s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", job.ID, StatusOpen).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
			"updated_at": time.Now().UTC(),
		}).Error
}

// MarkRepaired closes a job the engine fixed. Releasing the dedup key lets
// the same drift open a fresh job if it ever reappears.
func (s *JobStore) MarkRepaired(ctx context.Context, job *Job, note string) error {
	return s.close(ctx, job, StatusRepaired, map[string]any{"repair_note": note})
}

// Escalate hands a job automation cannot fix to the operator queue, either
// because the drift is never auto-repairable or because repairs kept
// failing. The dedup key stays held so rescans of the same drift cannot
// pile up duplicate jobs; only an operator Resolve frees it.
func (s *JobStore) Escalate(ctx context.Context, job *Job, cause string) error {
	result := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", job.ID, StatusOpen).
		Updates(map[string]any{
			"status":     StatusEscalated,
			"last_error": cause,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("reconciliation job %d is not open", job.ID)
	}
	job.Status = StatusEscalated
	job.LastError = cause
	return nil
}

// Resolve closes a job on an operator's say-so.
func (s *JobStore) Resolve(ctx context.Context, job *Job) error {
	return s.close(ctx, job, StatusResolved, nil)
}

func (s *JobStore) close(ctx context.Context, job *Job, status Status, extra map[string]any) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":      status,
		"dedup_key":   fmt.Sprintf("%s:closed-%d", job.DedupKey, job.ID),
		"resolved_at": now,
		"updated_at":  now,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status IN ?", job.ID, []Status{StatusOpen, StatusEscalated}).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("reconciliation job %d already closed", job.ID)
	}
	job.Status = status
	job.ResolvedAt = &now
	return nil
}

// OpenCount counts jobs still awaiting repair or escalation.
func (s *JobStore) OpenCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Job{}).
		Where("status = ?", StatusOpen).
		Count(&count).Error
	return count, err
}

// ListOpen returns open and escalated jobs for the operator surface,
// oldest first.
func (s *JobStore) ListOpen(ctx context.Context, limit int) ([]Job, error) {
	var jobs []Job
	err := s.db.WithContext(ctx).
		Where("status IN ?", []Status{StatusOpen, StatusEscalated}).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// CountByStatus backs the queue stats surface.
func (s *JobStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	type row struct {
		Status Status
		Count  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&Job{}).
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
