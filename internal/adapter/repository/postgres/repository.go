package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/talentflowlabs/talentflow-core/internal/domain/booking"
)

// BookingModel is the database DTO with Gorm tags.
type BookingModel struct {
	ID               int64  `gorm:"primaryKey"`
	RequestID        int64  `gorm:"index"`
	CandidateName    string `gorm:"type:varchar(255)"`
	CandidateEmail   string `gorm:"type:varchar(255)"`
	InterviewerEmail string `gorm:"type:varchar(255)"`
	Status           string `gorm:"type:varchar(50);index"`

	StartsAt time.Time
	EndsAt   time.Time

	CalendarEventID  string `gorm:"type:varchar(255);index"`
	ATSApplicationID string `gorm:"column:ats_application_id;type:varchar(255);index"`
	ATSNoteID        string `gorm:"column:ats_note_id;type:varchar(255)"`

	ExternalStatus string `gorm:"type:varchar(100)"`
	SyncFlag       string `gorm:"type:varchar(50)"`
	LastSyncedAt   time.Time
	LastError      string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BookingModel) TableName() string {
	return "bookings"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*booking.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, booking.ErrNotFound
		}
		return nil, err
	}
	return toDomain(model), nil
}

func (r *Repository) FindByCalendarEventID(ctx context.Context, eventID string) (*booking.Booking, error) {
	if eventID == "" {
		return nil, nil
	}
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("calendar_event_id = ?", eventID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(model), nil
}

func (r *Repository) FindByATSApplicationID(ctx context.Context, applicationID string) (*booking.Booking, error) {
	if applicationID == "" {
		return nil, nil
	}
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("ats_application_id = ?", applicationID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(model), nil
}

func (r *Repository) Save(ctx context.Context, entity *booking.Booking) error {
	model := toModel(entity)
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return err
	}
	// Propagate ID back to entity if new
	entity.ID = model.ID
	return nil
}

func (r *Repository) ListByStatus(ctx context.Context, statuses []booking.Status, limit int) ([]*booking.Booking, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}

	query := r.db.WithContext(ctx).Where("status IN ?", values).Order("last_synced_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []BookingModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	items := make([]*booking.Booking, 0, len(models))
	for _, model := range models {
		items = append(items, toDomain(model))
	}
	return items, nil
}

// Mappers

func toDomain(m BookingModel) *booking.Booking {
	return &booking.Booking{
		ID:               m.ID,
		RequestID:        m.RequestID,
		CandidateName:    m.CandidateName,
		CandidateEmail:   m.CandidateEmail,
		InterviewerEmail: m.InterviewerEmail,
		Status:           booking.Status(m.Status),
		StartsAt:         m.StartsAt,
		EndsAt:           m.EndsAt,
		CalendarEventID:  m.CalendarEventID,
		ATSApplicationID: m.ATSApplicationID,
		ATSNoteID:        m.ATSNoteID,
		ExternalStatus:   m.ExternalStatus,
		SyncFlag:         booking.SyncFlag(m.SyncFlag),
		LastSyncedAt:     m.LastSyncedAt,
		LastError:        m.LastError,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func toModel(d *booking.Booking) BookingModel {
	return BookingModel{
		ID:               d.ID,
		RequestID:        d.RequestID,
		CandidateName:    d.CandidateName,
		CandidateEmail:   d.CandidateEmail,
		InterviewerEmail: d.InterviewerEmail,
		Status:           string(d.Status),
		StartsAt:         d.StartsAt,
		EndsAt:           d.EndsAt,
		CalendarEventID:  d.CalendarEventID,
		ATSApplicationID: d.ATSApplicationID,
		ATSNoteID:        d.ATSNoteID,
		ExternalStatus:   d.ExternalStatus,
		SyncFlag:         string(d.SyncFlag),
		LastSyncedAt:     d.LastSyncedAt,
		LastError:        d.LastError,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}
