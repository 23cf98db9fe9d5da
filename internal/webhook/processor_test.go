package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/talentflowlabs/talentflow-core/internal/config"
	"github.com/talentflowlabs/talentflow-core/internal/domain/booking"
	"github.com/talentflowlabs/talentflow-core/internal/jobrun"
	"github.com/talentflowlabs/talentflow-core/internal/notification"
)

type mockEventSource struct {
	due       []Event
	processed []int64
	failed    map[int64]string
}

func newMockEventSource(due ...Event) *mockEventSource {
	return &mockEventSource{due: due, failed: make(map[int64]string)}
}

func (m *mockEventSource) ClaimVerified(ctx context.Context, limit int) ([]Event, error) {
	events := m.due
	if len(events) > limit {
		events = events[:limit]
	}
	m.due = nil
	for i := range events {
		events[i].Attempts++
	}
	return events, nil
}

func (m *mockEventSource) MarkProcessed(ctx context.Context, event *Event) error {
	m.processed = append(m.processed, event.ID)
	return nil
}

func (m *mockEventSource) MarkFailed(ctx context.Context, event *Event, cause error) error {
	m.failed[event.ID] = cause.Error()
	return nil
}

func (m *mockEventSource) Depth(ctx context.Context) (int64, error) {
	return int64(len(m.due)), nil
}

// mockBookingRepo is a simple in-memory repository for testing
type mockBookingRepo struct {
	bookings map[int64]*booking.Booking
	saveErr  error
}

func newMockBookingRepo(bookings ...*booking.Booking) *mockBookingRepo {
	m := &mockBookingRepo{bookings: make(map[int64]*booking.Booking)}
	for _, b := range bookings {
		m.bookings[b.ID] = b
	}
	return m
}

func (m *mockBookingRepo) FindByID(ctx context.Context, id int64) (*booking.Booking, error) {
	b, ok := m.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return b, nil
}

func (m *mockBookingRepo) FindByCalendarEventID(ctx context.Context, eventID string) (*booking.Booking, error) {
	for _, b := range m.bookings {
		if b.CalendarEventID == eventID {
			return b, nil
		}
	}
	return nil, nil
}

func (m *mockBookingRepo) FindByATSApplicationID(ctx context.Context, applicationID string) (*booking.Booking, error) {
	for _, b := range m.bookings {
		if b.ATSApplicationID == applicationID {
			return b, nil
		}
	}
	return nil, nil
}

func (m *mockBookingRepo) Save(ctx context.Context, b *booking.Booking) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.bookings[b.ID] = b
	return nil
}

func (m *mockBookingRepo) ListByStatus(ctx context.Context, statuses []booking.Status, limit int) ([]*booking.Booking, error) {
	var result []*booking.Booking
	for _, b := range m.bookings {
		for _, status := range statuses {
			if b.Status == status {
				result = append(result, b)
				break
			}
		}
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

type enqueued struct {
	key      string
	typ      notification.Type
	entityID int64
}

type mockNotifications struct {
	enqueues  []enqueued
	canceled  []int64
	scheduled []int64
}

func (m *mockNotifications) Enqueue(ctx context.Context, key string, t notification.Type, et notification.EntityType, entityID int64, payload any, runAfter time.Time) (*notification.Job, bool, error) {
	m.enqueues = append(m.enqueues, enqueued{key: key, typ: t, entityID: entityID})
	return &notification.Job{ID: int64(len(m.enqueues)), IdempotencyKey: key, Type: t}, true, nil
}

func (m *mockNotifications) ScheduleReminders(ctx context.Context, b *booking.Booking) ([]*notification.Job, int, error) {
	m.scheduled = append(m.scheduled, b.ID)
	return nil, 0, nil
}

func (m *mockNotifications) CancelForEntity(ctx context.Context, et notification.EntityType, entityID int64, types ...notification.Type) (int64, error) {
	m.canceled = append(m.canceled, entityID)
	return 1, nil
}

func processorConfig() *config.Config {
	return &config.Config{
		WebhookLockTTL:   5 * time.Minute,
		WebhookBatchSize: 50,
		WebhookInterval:  30 * time.Second,
	}
}

func calendarEvent(id int64, eventType, calEventID string) Event {
	return Event{
		ID:          id,
		Provider:    ProviderCalendar,
		EventType:   eventType,
		Verified:    true,
		Status:      StatusReceived,
		MaxAttempts: 5,
		Payload:     []byte(`{"data":{"event_id":"` + calEventID + `"}}`),
	}
}

func newTestProcessor(events EventSource, repo booking.Repository, notifs Notifications, recorder jobrun.RunRecorder) *Processor {
	return NewProcessor(events, repo, notifs, grantingLocker{}, recorder, processorConfig(), "test-instance", zap.NewNop())
}

type grantingLocker struct{}

func (grantingLocker) Acquire(ctx context.Context, resource, holder string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (grantingLocker) Release(ctx context.Context, resource, holder string) error { return nil }
func (grantingLocker) Renew(ctx context.Context, resource, holder string, ttl time.Duration) (bool, error) {
	return true, nil
}

type nopRecorder struct {
	finished []jobrun.Outcome
}

func (n *nopRecorder) Start(ctx context.Context, jobName string, triggeredBy jobrun.TriggerSource, instanceID string, depthBefore int64) (*jobrun.Run, error) {
	return &jobrun.Run{ID: 1, JobName: jobName, Status: jobrun.StatusRunning}, nil
}

func (n *nopRecorder) Finish(ctx context.Context, run *jobrun.Run, outcome jobrun.Outcome) error {
	n.finished = append(n.finished, outcome)
	run.Status = jobrun.StatusCompleted
	return nil
}

func (n *nopRecorder) RecordLocked(ctx context.Context, jobName string, triggeredBy jobrun.TriggerSource, instanceID string) (*jobrun.Run, error) {
	return &jobrun.Run{JobName: jobName, Status: jobrun.StatusLocked}, nil
}

func (n *nopRecorder) FinalizeStale(ctx context.Context, jobName string, maxAge time.Duration) (int64, error) {
	return 0, nil
}

func TestProcessor_CalendarCanceled(t *testing.T) {
	b := &booking.Booking{
		ID:              10,
		Status:          booking.StatusConfirmed,
		CandidateEmail:  "cand@example.com",
		CalendarEventID: "cal_9",
		StartsAt:        time.Now().Add(24 * time.Hour),
	}
	repo := newMockBookingRepo(b)
	notifs := &mockNotifications{}
	events := newMockEventSource(calendarEvent(1, EventCalendarCanceled, "cal_9"))
	recorder := &nopRecorder{}

	_, err := newTestProcessor(events, repo, notifs, recorder).RunOnce(context.Background(), jobrun.TriggerScheduler)
	require.NoError(t, err)

	assert.Equal(t, booking.StatusCanceled, b.Status)
	assert.Equal(t, []int64{10}, notifs.canceled)
	require.Len(t, notifs.enqueues, 1)
	assert.Equal(t, notification.TypeBookingCanceled, notifs.enqueues[0].typ)
	assert.Equal(t, []int64{1}, events.processed)
	require.Len(t, recorder.finished, 1)
	assert.Equal(t, 1, recorder.finished[0].Processed)
}

func TestProcessor_CalendarCanceledIsIdempotent(t *testing.T) {
	b := &booking.Booking{
		ID:              10,
		Status:          booking.StatusCanceled,
		CalendarEventID: "cal_9",
	}
	repo := newMockBookingRepo(b)
	notifs := &mockNotifications{}
	events := newMockEventSource(calendarEvent(1, EventCalendarCanceled, "cal_9"))
	recorder := &nopRecorder{}

	_, err := newTestProcessor(events, repo, notifs, recorder).RunOnce(context.Background(), jobrun.TriggerScheduler)
	require.NoError(t, err)

	// Already canceled: acknowledged without side effects.
	assert.Empty(t, notifs.enqueues)
	assert.Empty(t, notifs.canceled)
	assert.Equal(t, []int64{1}, events.processed)
	assert.Equal(t, 1, recorder.finished[0].Skipped)
}

func TestProcessor_CalendarRescheduled(t *testing.T) {
	newStart := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)
	newEnd := newStart.Add(time.Hour)

	b := &booking.Booking{
		ID:              20,
		Status:          booking.StatusConfirmed,
		CalendarEventID: "cal_20",
		StartsAt:        time.Now().Add(24 * time.Hour),
	}
	repo := newMockBookingRepo(b)
	notifs := &mockNotifications{}
	recorder := &nopRecorder{}

	payload := `{"data":{"event_id":"cal_20","starts_at":"` + newStart.Format(time.RFC3339) + `","ends_at":"` + newEnd.Format(time.RFC3339) + `"}}`
	event := calendarEvent(1, EventCalendarRescheduled, "cal_20")
	event.Payload = []byte(payload)
	events := newMockEventSource(event)

	_, err := newTestProcessor(events, repo, notifs, recorder).RunOnce(context.Background(), jobrun.TriggerScheduler)
	require.NoError(t, err)

	assert.True(t, b.StartsAt.Equal(newStart))
	assert.True(t, b.EndsAt.Equal(newEnd))
	// Old-slot reminders canceled, new ones scheduled, notice enqueued.
	assert.Equal(t, []int64{20}, notifs.canceled)
	assert.Equal(t, []int64{20}, notifs.scheduled)
	require.Len(t, notifs.enqueues, 1)
	assert.Equal(t, notification.TypeBookingRescheduled, notifs.enqueues[0].typ)
}

func TestProcessor_ATSWithdrawnCancelsBooking(t *testing.T) {
	b := &booking.Booking{
		ID:               30,
		Status:           booking.StatusConfirmed,
		ATSApplicationID: "app_30",
		InterviewerEmail: "ivr@example.com",
	}
	repo := newMockBookingRepo(b)
	notifs := &mockNotifications{}
	recorder := &nopRecorder{}

	events := newMockEventSource(Event{
		ID:          1,
		Provider:    ProviderATS,
		EventType:   EventATSAppUpdated,
		Verified:    true,
		Status:      StatusReceived,
		MaxAttempts: 5,
		Payload:     []byte(`{"data":{"application_id":"app_30","status":"withdrawn"}}`),
	})

	_, err := newTestProcessor(events, repo, notifs, recorder).RunOnce(context.Background(), jobrun.TriggerScheduler)
	require.NoError(t, err)

	assert.Equal(t, booking.StatusCanceled, b.Status)
	assert.Equal(t, "withdrawn", b.ExternalStatus)
	assert.Equal(t, []int64{30}, notifs.canceled)
	require.Len(t, notifs.enqueues, 1)
}

func TestProcessor_UnknownEventTypeAcknowledged(t *testing.T) {
	repo := newMockBookingRepo()
	notifs := &mockNotifications{}
	recorder := &nopRecorder{}
	events := newMockEventSource(calendarEvent(1, "attendee_responded", "cal_1"))

	_, err := newTestProcessor(events, repo, notifs, recorder).RunOnce(context.Background(), jobrun.TriggerScheduler)
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, events.processed)
	assert.Equal(t, 1, recorder.finished[0].Skipped)
	assert.Empty(t, events.failed)
}

func TestProcessor_NoMatchingBookingAcknowledged(t *testing.T) {
	repo := newMockBookingRepo()
	notifs := &mockNotifications{}
	recorder := &nopRecorder{}
	events := newMockEventSource(calendarEvent(1, EventCalendarCanceled, "cal_unknown"))

	_, err := newTestProcessor(events, repo, notifs, recorder).RunOnce(context.Background(), jobrun.TriggerScheduler)
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, events.processed)
	assert.Empty(t, events.failed)
}

func TestProcessor_ApplyFailureMarksEventFailed(t *testing.T) {
	b := &booking.Booking{
		ID:              40,
		Status:          booking.StatusConfirmed,
		CalendarEventID: "cal_40",
	}
	repo := newMockBookingRepo(b)
	repo.saveErr = errors.New("db down")
	notifs := &mockNotifications{}
	recorder := &nopRecorder{}
	events := newMockEventSource(calendarEvent(1, EventCalendarCanceled, "cal_40"))

	_, err := newTestProcessor(events, repo, notifs, recorder).RunOnce(context.Background(), jobrun.TriggerScheduler)
	require.NoError(t, err)

	assert.Empty(t, events.processed)
	assert.Contains(t, events.failed[1], "db down")
	assert.Equal(t, 1, recorder.finished[0].Failed)
}
