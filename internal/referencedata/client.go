package referencedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/pkg/circuitbreaker"
)

// ClientConfig holds configuration for the reference data client.
type ClientConfig struct {
	// BaseURL is the root of the reference data service, e.g.
	// http://referencedata/api
	BaseURL string
	// AuthToken is sent as a bearer token on every request
	AuthToken string
	// RequestTimeout bounds each lookup call
	RequestTimeout time.Duration
}

// DefaultClientConfig returns defaults for an in-cluster deployment.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        "http://referencedata/api",
		RequestTimeout: 10 * time.Second,
	}
}

// Client looks up reference data over HTTP. All lookups are read-only; a
// 404 or empty body is reported as a nil result (a business outcome, not
// an error), while transport and server failures surface as
// *RetrievalError.
type Client struct {
	cfg     ClientConfig
	httpc   *http.Client
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewClient creates a reference data client guarded by the given breaker.
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
		tracer:  otel.Tracer("referencedata-client"),
	}
}

// FindOrderable fetches an orderable by id. Returns (nil, nil) when the
// orderable does not exist.
func (c *Client) FindOrderable(ctx context.Context, id uuid.UUID) (*Orderable, error) {
	var orderable Orderable
	found, err := c.get(ctx, "orderable", fmt.Sprintf("/orderables/%s", id), &orderable)
	if err != nil || !found {
		return nil, err
	}
	return &orderable, nil
}

// FindLot fetches a lot by id. Returns (nil, nil) when the lot does not
// exist.
func (c *Client) FindLot(ctx context.Context, id uuid.UUID) (*Lot, error) {
	var lot Lot
	found, err := c.get(ctx, "lot", fmt.Sprintf("/lots/%s", id), &lot)
	if err != nil || !found {
		return nil, err
	}
	return &lot, nil
}

// FindFacility fetches a facility by id. Returns (nil, nil) when the
// facility does not exist.
func (c *Client) FindFacility(ctx context.Context, id uuid.UUID) (*Facility, error) {
	var facility Facility
	found, err := c.get(ctx, "facility", fmt.Sprintf("/facilities/%s", id), &facility)
	if err != nil || !found {
		return nil, err
	}
	return &facility, nil
}

// get performs a single lookup through the circuit breaker. The bool
// result distinguishes "found" from "resource does not exist".
func (c *Client) get(ctx context.Context, resource, path string, out interface{}) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "referencedata_lookup",
		trace.WithAttributes(
			attribute.String("resource", resource),
			attribute.String("path", path),
		))
	defer span.End()

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
		if err != nil {
			return nil, err
		}
		if c.cfg.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, &RetrievalError{Resource: resource, Response: err.Error()}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &RetrievalError{Resource: resource, Status: resp.StatusCode, Response: err.Error()}
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return false, nil
		case resp.StatusCode >= 300:
			return nil, &RetrievalError{Resource: resource, Status: resp.StatusCode, Response: string(body)}
		case len(body) == 0:
			return false, nil
		}

		if err := json.Unmarshal(body, out); err != nil {
			return nil, &RetrievalError{Resource: resource, Status: resp.StatusCode, Response: err.Error()}
		}
		return true, nil
	})
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("reference data lookup failed",
			zap.String("resource", resource),
			zap.String("path", path),
			zap.Error(err))
		return false, err
	}

	return result.(bool), nil
}
