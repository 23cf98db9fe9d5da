package lock

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lock is a TTL-bounded lease over a named resource. At most one unexpired
// row exists per resource name; the unique constraint on resource_name is
// what makes acquisition race-free.
type Lock struct {
	ResourceName string `gorm:"primaryKey;type:varchar(100)"`
	HolderID     string `gorm:"type:varchar(100);not null"`
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Lock) TableName() string {
	return "worker_locks"
}

// Locker grants mutually-exclusive leases over named resources.
type Locker interface {
	// Acquire attempts to take the lease. Denial is the expected outcome
	// when another holder owns an unexpired lease; it is not an error.
	Acquire(ctx context.Context, resource, holder string, ttl time.Duration) (bool, error)

	// Release drops the lease if the caller still holds it.
	Release(ctx context.Context, resource, holder string) error

	// Renew extends an unexpired lease owned by the caller.
	Renew(ctx context.Context, resource, holder string, ttl time.Duration) (bool, error)
}

// Manager is the database-backed Locker.
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewManager(db *gorm.DB, logger *zap.Logger) *Manager {
	return &Manager{
		db:     db,
		logger: logger.Named("lock"),
	}
}

// Acquire is a single conditional write: insert wins when no row exists,
// the upsert branch wins when the existing lease has expired or is already
// owned by holder. An expired lease is treated as abandoned; reclaiming it
// bounds the blast radius of a crashed worker without heartbeats.
func (m *Manager) Acquire(ctx context.Context, resource, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	row := Lock{
		ResourceName: resource,
		HolderID:     holder,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "resource_name"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Or(
				clause.Lte{Column: clause.Column{Table: "worker_locks", Name: "expires_at"}, Value: now},
				clause.Eq{Column: clause.Column{Table: "worker_locks", Name: "holder_id"}, Value: holder},
			),
		}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"holder_id":  holder,
			"expires_at": now.Add(ttl),
			"updated_at": now,
		}),
	}).Create(&row)
	if result.Error != nil {
		return false, result.Error
	}

	granted := result.RowsAffected > 0
	if granted {
		m.logger.Debug("lock_acquired",
			zap.String("resource", resource),
			zap.String("holder", holder),
			zap.Duration("ttl", ttl),
		)
	} else {
		m.logger.Debug("lock_denied",
			zap.String("resource", resource),
			zap.String("holder", holder),
		)
	}
	return granted, nil
}

func (m *Manager) Release(ctx context.Context, resource, holder string) error {
	return m.db.WithContext(ctx).
		Where("resource_name = ? AND holder_id = ?", resource, holder).
		Delete(&Lock{}).Error
}

func (m *Manager) Renew(ctx context.Context, resource, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	result := m.db.WithContext(ctx).Model(&Lock{}).
		Where("resource_name = ? AND holder_id = ? AND expires_at > ?", resource, holder, now).
		Updates(map[string]any{
			"expires_at": now.Add(ttl),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
