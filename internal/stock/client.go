// Package stock integrates with the external stock management service:
// stock-on-hand queries and stock event submission.
package stock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/referencedata"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/pkg/circuitbreaker"
)

// CardSummary is one stock-on-hand record returned by the stock service.
type CardSummary struct {
	OrderableID uuid.UUID `json:"orderableId"`
	LotCode     string    `json:"lotCode,omitempty"`
	StockOnHand int       `json:"stockOnHand"`
}

// Event is a stock movement submitted to the stock service. The serving
// engine only ever submits debits.
type Event struct {
	FacilityID uuid.UUID       `json:"facilityId"`
	ProgramID  uuid.UUID       `json:"programId"`
	UserID     uuid.UUID       `json:"userId"`
	AsOfDate   string          `json:"occurredDate"`
	LineItems  []EventLineItem `json:"lineItems"`
}

// EventLineItem is one movement line within a stock event.
type EventLineItem struct {
	OrderableID uuid.UUID `json:"orderableId"`
	LotID       uuid.UUID `json:"lotId"`
	Quantity    int       `json:"quantity"`
	ReasonID    uuid.UUID `json:"reasonId"`
}

// ClientConfig holds configuration for the stock service client.
type ClientConfig struct {
	// BaseURL is the root of the stock management service
	BaseURL string
	// AuthToken is sent as a bearer token on every request
	AuthToken string
	// RequestTimeout bounds each call
	RequestTimeout time.Duration
}

// DefaultClientConfig returns defaults for an in-cluster deployment.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        "http://stockmanagement/api",
		RequestTimeout: 15 * time.Second,
	}
}

// Client talks to the stock management service. Both operations are
// synchronous: SubmitStockEvent must complete (or fail) before the caller
// marks the corresponding line item served, so stock truth never drifts
// from prescription truth.
type Client struct {
	cfg     ClientConfig
	httpc   *http.Client
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewClient creates a stock service client guarded by the given breaker.
func NewClient(cfg ClientConfig, breaker *circuitbreaker.Breaker, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultClientConfig().RequestTimeout
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.RequestTimeout},
		breaker: breaker,
		logger:  logger,
		tracer:  otel.Tracer("stock-client"),
	}
}

// QueryStockOnHand returns the stock-on-hand records for the given
// orderables at a facility. An empty slice is a valid outcome meaning no
// stock record exists for the product at the facility.
func (c *Client) QueryStockOnHand(ctx context.Context, programID, facilityID uuid.UUID,
	orderableIDs []uuid.UUID, asOfDate time.Time, lotCode string) ([]CardSummary, error) {

	ctx, span := c.tracer.Start(ctx, "stock_on_hand_query",
		trace.WithAttributes(
			attribute.String("program_id", programID.String()),
			attribute.String("facility_id", facilityID.String()),
			attribute.Int("orderable_count", len(orderableIDs)),
		))
	defer span.End()

	params := url.Values{}
	params.Set("programId", programID.String())
	params.Set("facilityId", facilityID.String())
	params.Set("asOfDate", asOfDate.Format("2006-01-02"))
	if lotCode != "" {
		params.Set("lotCode", lotCode)
	}
	ids := make([]string, 0, len(orderableIDs))
	for _, id := range orderableIDs {
		ids = append(ids, id.String())
	}
	params.Set("orderableId", strings.Join(ids, ","))

	endpoint := c.cfg.BaseURL + "/stockCardSummaries?" + params.Encode()

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, &referencedata.RetrievalError{Resource: "stockCardSummaries", Response: err.Error()}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &referencedata.RetrievalError{Resource: "stockCardSummaries", Status: resp.StatusCode, Response: err.Error()}
		}
		if resp.StatusCode >= 300 {
			return nil, &referencedata.RetrievalError{Resource: "stockCardSummaries", Status: resp.StatusCode, Response: string(body)}
		}

		var summaries []CardSummary
		if len(body) > 0 {
			if err := json.Unmarshal(body, &summaries); err != nil {
				return nil, &referencedata.RetrievalError{Resource: "stockCardSummaries", Status: resp.StatusCode, Response: err.Error()}
			}
		}
		return summaries, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	summaries := result.([]CardSummary)
	span.SetAttributes(attribute.Int("summary_count", len(summaries)))
	return summaries, nil
}

// SubmitStockEvent posts a stock movement to the stock service, blocking
// until the service acknowledges it.
func (c *Client) SubmitStockEvent(ctx context.Context, event Event) error {
	ctx, span := c.tracer.Start(ctx, "stock_event_submit",
		trace.WithAttributes(
			attribute.String("facility_id", event.FacilityID.String()),
			attribute.String("program_id", event.ProgramID.String()),
			attribute.Int("line_items", len(event.LineItems)),
		))
	defer span.End()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stock event: %w", err)
	}

	_, err = c.breaker.Execute(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/stockEvents", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, &referencedata.RetrievalError{Resource: "stockEvents", Response: err.Error()}
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 300 {
			return nil, &referencedata.RetrievalError{Resource: "stockEvents", Status: resp.StatusCode, Response: string(body)}
		}
		return nil, nil
	})
	if err != nil {
		span.RecordError(err)
		c.logger.Error("stock event submission failed",
			zap.String("facility_id", event.FacilityID.String()),
			zap.Error(err))
		return err
	}

	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
}
