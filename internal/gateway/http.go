package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPGateway talks to an external processor exposing POST /charges and
// POST /refunds. A 4xx answer is a decline, anything else non-2xx an error.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type chargeResponse struct {
	TransactionID string `json:"transactionId"`
}

type refundResponse struct {
	RefundID string `json:"refundId"`
}

func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	var resp chargeResponse
	if err := g.post(ctx, "/charges", req, &resp); err != nil {
		return "", err
	}
	if resp.TransactionID == "" {
		return "", fmt.Errorf("charge intent %s: empty transaction id", req.IntentID)
	}
	return resp.TransactionID, nil
}

func (g *HTTPGateway) Refund(ctx context.Context, req RefundRequest) (string, error) {
	var resp refundResponse
	if err := g.post(ctx, "/refunds", req, &resp); err != nil {
		return "", err
	}
	if resp.RefundID == "" {
		return "", fmt.Errorf("refund intent %s: empty refund id", req.IntentID)
	}
	return resp.RefundID, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s %s", ErrDeclined, resp.Status, strings.TrimSpace(string(msg)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payment gateway %s: %s", path, resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
