package booking

import "context"

// Repository defines the interface for persisting Booking entities.
type Repository interface {
	// FindByID retrieves a booking by its ID.
	FindByID(ctx context.Context, id int64) (*Booking, error)

	// FindByCalendarEventID retrieves the booking backing a calendar event.
	// Returns nil, nil when no booking references the event.
	FindByCalendarEventID(ctx context.Context, eventID string) (*Booking, error)

	// FindByATSApplicationID retrieves the booking tied to an ATS application.
	// Returns nil, nil when none exists.
	FindByATSApplicationID(ctx context.Context, applicationID string) (*Booking, error)

	// Save persists a booking (create or update).
	Save(ctx context.Context, b *Booking) error

	// ListByStatus retrieves bookings matching any of the provided statuses,
	// oldest-synced first.
	ListByStatus(ctx context.Context, statuses []Status, limit int) ([]*Booking, error)
}
