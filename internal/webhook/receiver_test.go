package webhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/talentflowlabs/talentflow-core/internal/config"
)

// mockInserter is a simple in-memory event store for testing
type mockInserter struct {
	byDedupKey map[string]*Event
}

func newMockInserter() *mockInserter {
	return &mockInserter{byDedupKey: make(map[string]*Event)}
}

func (m *mockInserter) Insert(ctx context.Context, event *Event) (*Event, bool, error) {
	if existing, ok := m.byDedupKey[event.DedupKey]; ok {
		return existing, false, nil
	}
	event.ID = int64(len(m.byDedupKey) + 1)
	m.byDedupKey[event.DedupKey] = event
	return event, true, nil
}

func newTestReceiver(store Inserter) *Receiver {
	cfg := &config.Config{
		CalendarWebhookSecret: "cal-secret",
		ATSWebhookSecret:      "ats-secret",
	}
	return NewReceiver(store, cfg, zap.NewNop())
}

func TestReceiver_VerifiedDelivery(t *testing.T) {
	store := newMockInserter()
	receiver := newTestReceiver(store)

	body := []byte(`{"id":"evt_1","type":"event_canceled","data":{"event_id":"cal_9"}}`)
	sig := ComputeSignature("cal-secret", body)

	receipt, err := receiver.Receive(context.Background(), ProviderCalendar, body, sig)
	require.NoError(t, err)

	assert.True(t, receipt.Created)
	assert.True(t, receipt.Verified)
	assert.Equal(t, StatusReceived, receipt.Event.Status)
	assert.Equal(t, "calendar:evt_1", receipt.Event.DedupKey)
	assert.Equal(t, "event_canceled", receipt.Event.EventType)
}

func TestReceiver_BadSignatureStoredUnverified(t *testing.T) {
	store := newMockInserter()
	receiver := newTestReceiver(store)

	body := []byte(`{"id":"evt_2","type":"event_canceled"}`)

	receipt, err := receiver.Receive(context.Background(), ProviderCalendar, body, "sha256=deadbeef")
	require.NoError(t, err)

	// Stored for audit but never eligible for processing.
	assert.True(t, receipt.Created)
	assert.False(t, receipt.Verified)
	assert.False(t, receipt.Event.Verified)
	assert.Equal(t, StatusReceived, receipt.Event.Status)
}

func TestReceiver_DuplicateDelivery(t *testing.T) {
	store := newMockInserter()
	receiver := newTestReceiver(store)

	body := []byte(`{"id":"evt_3","type":"application_updated"}`)
	sig := ComputeSignature("ats-secret", body)

	first, err := receiver.Receive(context.Background(), ProviderATS, body, sig)
	require.NoError(t, err)
	second, err := receiver.Receive(context.Background(), ProviderATS, body, sig)
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Event.ID, second.Event.ID)
}

func TestReceiver_MissingEventIDFallsBackToHash(t *testing.T) {
	store := newMockInserter()
	receiver := newTestReceiver(store)

	body := []byte(`{"type":"application_updated","data":{"application_id":"app_1"}}`)
	sig := ComputeSignature("ats-secret", body)

	receipt, err := receiver.Receive(context.Background(), ProviderATS, body, sig)
	require.NoError(t, err)
	assert.Equal(t, "ats:sha256:"+payloadHash(body), receipt.Event.DedupKey)

	// A whitespace-reformatted retry still collapses onto the same event.
	reformatted := []byte("{ \"type\": \"application_updated\", \"data\": { \"application_id\": \"app_1\" } }")
	retry, err := receiver.Receive(context.Background(), ProviderATS, reformatted, ComputeSignature("ats-secret", reformatted))
	require.NoError(t, err)
	assert.False(t, retry.Created)
	assert.Equal(t, receipt.Event.ID, retry.Event.ID)
}

func TestReceiver_MalformedBody(t *testing.T) {
	receiver := newTestReceiver(newMockInserter())

	_, err := receiver.Receive(context.Background(), ProviderCalendar, []byte(`{`), "sig")
	assert.ErrorIs(t, err, ErrMalformedBody)

	_, err = receiver.Receive(context.Background(), ProviderCalendar, []byte(`{"id":"evt_4"}`), "sig")
	assert.ErrorIs(t, err, ErrMalformedBody, "missing type")
}

func TestReceiver_UnknownProvider(t *testing.T) {
	receiver := newTestReceiver(newMockInserter())

	_, err := receiver.Receive(context.Background(), Provider("crm"), []byte(`{"id":"1","type":"x"}`), "sig")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
