package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/talentflowlabs/talentflow-core/internal/config"
	"github.com/talentflowlabs/talentflow-core/internal/telemetry"
)

var (
	ErrUnknownProvider = errors.New("unknown webhook provider")
	ErrMalformedBody   = errors.New("malformed webhook body")
)

// Inserter is the receiver's view of the store.
type Inserter interface {
	Insert(ctx context.Context, event *Event) (*Event, bool, error)
}

// envelope is the shared shape both providers wrap their payloads in.
type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Receiver authenticates, deduplicates and persists inbound events. It runs
// inline with the HTTP request, so it must stay fast and side-effect-free:
// all business logic is deferred to the Processor.
type Receiver struct {
	store   Inserter
	secrets map[Provider]string
	logger  *zap.Logger
}

func NewReceiver(store Inserter, cfg *config.Config, logger *zap.Logger) *Receiver {
	return &Receiver{
		store: store,
		secrets: map[Provider]string{
			ProviderCalendar: cfg.CalendarWebhookSecret,
			ProviderATS:      cfg.ATSWebhookSecret,
		},
		logger: logger.Named("webhook.receiver"),
	}
}

// Receipt reports what happened to one delivery.
type Receipt struct {
	Event    *Event
	Created  bool
	Verified bool
}

// Receive verifies the signature over the raw body, dedups and persists.
// A failed signature still stores the event for audit but leaves it
// unverified, so the processor can never pick it up. A duplicate delivery
// returns the existing event with Created=false.
func (r *Receiver) Receive(ctx context.Context, provider Provider, body []byte, signature string) (*Receipt, error) {
	secret, ok := r.secrets[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedBody)
	}

	verified := VerifySignature(secret, body, signature)
	telemetry.WebhooksReceived.WithLabelValues(string(provider), fmt.Sprintf("%t", verified)).Inc()

	hash := payloadHash(body)
	dedupKey := string(provider) + ":" + env.ID
	if env.ID == "" {
		dedupKey = string(provider) + ":sha256:" + hash
	}

	event := &Event{
		Provider:    provider,
		EventID:     env.ID,
		EventType:   env.Type,
		PayloadHash: hash,
		DedupKey:    dedupKey,
		Verified:    verified,
		Status:      StatusReceived,
		Payload:     body,
	}

	stored, created, err := r.store.Insert(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}

	if !verified {
		r.logger.Warn("webhook_signature_invalid",
			zap.String("provider", string(provider)),
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
		)
	} else if !created {
		r.logger.Info("webhook_duplicate_delivery",
			zap.String("provider", string(provider)),
			zap.String("dedup_key", dedupKey),
		)
	}

	return &Receipt{Event: stored, Created: created, Verified: verified}, nil
}
