// Package backorder implements the worker that turns shortfalls from serve
// passes into backorders. It runs apart from the serving engine: the
// engine records what happened, this worker decides what is still owed.
package backorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	domain "github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/backorder"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/prescription"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/infrastructure/redpanda"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/pkg/idempotency"
)

const handlerName = "backorder-creator"

// Publisher publishes backorder notifications.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// InboxProcessor guards handlers against duplicate deliveries.
type InboxProcessor interface {
	Process(ctx context.Context, key, handlerName string, payload json.RawMessage,
		fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error)
}

// Handler processes prescription events and creates backorders for line
// items that could not be fully served. Each event passes through the
// idempotency inbox, so redelivered messages never create duplicates.
type Handler struct {
	repo      domain.Repository
	inbox     InboxProcessor
	publisher Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewHandler creates a backorder handler. publisher may be nil to skip
// notifications.
func NewHandler(repo domain.Repository, inbox InboxProcessor, publisher Publisher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		repo:      repo,
		inbox:     inbox,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("backorder-worker"),
	}
}

// Handle processes one consumed message. Non-served events and malformed
// payloads are acknowledged without effect.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event prescription.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Warn("discarding malformed event", zap.Error(err))
		return nil
	}
	if event.EventType != prescription.EventPrescriptionServed {
		return nil
	}

	ctx, span := h.tracer.Start(ctx, "backorder_handle",
		trace.WithAttributes(attribute.String("event_id", event.ID)))
	defer span.End()

	key := idempotency.GenerateKey(handlerName, event.ID)
	result, err := h.inbox.Process(ctx, key, handlerName, payload, func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		created, err := h.process(ctx, &event)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int{"backorders_created": created})
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !result.IsNew && !result.WasRecovered {
		h.logger.Debug("event already processed", zap.String("event_id", event.ID))
	}
	return nil
}

func (h *Handler) process(ctx context.Context, event *prescription.Event) (int, error) {
	var data prescription.ServedData
	if err := json.Unmarshal(event.EventData, &data); err != nil {
		return 0, fmt.Errorf("decode served payload: %w", err)
	}

	created := 0
	for _, li := range data.LineItems {
		outstanding, ok := outstandingQuantity(li)
		if !ok {
			continue
		}
		b := &domain.Backorder{
			PrescriptionID:      data.PrescriptionID,
			LineItemID:          li.LineItemID,
			PatientID:           data.PatientID,
			FacilityID:          data.FacilityID,
			OrderableID:         li.OrderableDispensed,
			QuantityOutstanding: outstanding,
			CollectBalanceDate:  li.CollectBalanceDate,
			CreatedAt:           time.Now().UTC(),
		}
		saved, err := h.repo.Upsert(ctx, b)
		if err != nil {
			return created, err
		}
		created++

		h.logger.Info("backorder recorded",
			zap.String("prescription_id", data.PrescriptionID.String()),
			zap.String("line_item_id", li.LineItemID.String()),
			zap.Int("quantity_outstanding", outstanding))

		if h.publisher != nil {
			notice, err := json.Marshal(saved)
			if err != nil {
				return created, fmt.Errorf("marshal backorder: %w", err)
			}
			if err := h.publisher.Publish(ctx, redpanda.TopicBackorderEvents, saved.ID.String(), notice); err != nil {
				return created, fmt.Errorf("publish backorder: %w", err)
			}
		}
	}
	return created, nil
}

// outstandingQuantity reports what the patient is still owed. Partially
// served lines owe the remaining balance; lines blocked on stock owe the
// full requested quantity. Balances served by another facility are not
// owed here.
func outstandingQuantity(li prescription.ServedLineItem) (int, bool) {
	switch li.Status {
	case prescription.LineItemPartiallyServed:
		if li.RemainingBalance > 0 {
			return li.RemainingBalance, true
		}
		return 0, false
	case prescription.LineItemInadequateStock:
		if li.QuantityDispensed > 0 {
			return li.QuantityDispensed, true
		}
		return 0, false
	default:
		return 0, false
	}
}
