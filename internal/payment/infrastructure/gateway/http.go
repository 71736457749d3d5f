package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/commercekit/orderflow/internal/payment/domain"
)

// HTTPGateway talks to an external payment provider over its REST API.
// Any transport error or non-2xx/402 answer is reported as unavailable so
// the caller's retry policy decides what to do with it.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGateway(baseURL string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type authorizeBody struct {
	OrderID        string `json:"order_id"`
	AmountCents    int64  `json:"amount_cents"`
	Method         string `json:"method"`
	IdempotencyKey string `json:"idempotency_key"`
}

type authorizeResponse struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

func (g *HTTPGateway) Authorize(ctx context.Context, req domain.AuthRequest) (domain.AuthResult, error) {
	body := authorizeBody{
		OrderID:        req.OrderID,
		AmountCents:    req.AmountCents,
		Method:         req.Method,
		IdempotencyKey: req.IdempotencyKey,
	}
	var parsed authorizeResponse
	status, err := g.post(ctx, "/v1/authorizations", body, &parsed)
	if err != nil {
		return domain.AuthResult{}, err
	}
	switch status {
	case http.StatusOK, http.StatusCreated:
		return domain.AuthResult{Outcome: domain.OutcomeAuthorized, Ref: parsed.Ref}, nil
	case http.StatusPaymentRequired:
		return domain.AuthResult{Outcome: domain.OutcomeDeclined, Reason: parsed.Reason}, nil
	default:
		return domain.AuthResult{Outcome: domain.OutcomeUnavailable, Reason: fmt.Sprintf("provider returned %d", status)}, nil
	}
}

type refundBody struct {
	Ref         string `json:"ref"`
	AmountCents int64  `json:"amount_cents"`
}

func (g *HTTPGateway) Refund(ctx context.Context, providerRef string, amountCents int64) error {
	status, err := g.post(ctx, "/v1/refunds", refundBody{Ref: providerRef, AmountCents: amountCents}, nil)
	if err != nil {
		return err
	}
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: provider returned %d for ref %s", domain.ErrRefundFailed, status, providerRef)
	default:
		return fmt.Errorf("refund request failed with status %d", status)
	}
}

func (g *HTTPGateway) post(ctx context.Context, path string, body, out any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil {
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return 0, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return 0, fmt.Errorf("decode provider response: %w", err)
			}
		}
	}
	return resp.StatusCode, nil
}
