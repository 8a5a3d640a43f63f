package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxResponseBytes = 1 << 20

// Doer is satisfied by resilience.HTTPClient.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPGateway posts session requests as JSON to a hosted-checkout endpoint.
type HTTPGateway struct {
	Endpoint string
	Client   Doer
}

// NewHTTPGateway validates the endpoint and returns a gateway.
func NewHTTPGateway(endpoint string, client Doer) (*HTTPGateway, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("payment: invalid gateway url %q", endpoint)
	}
	if client == nil {
		return nil, errors.New("payment: http client is required")
	}
	return &HTTPGateway{Endpoint: u.String(), Client: client}, nil
}

type sessionResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// CreateSession opens a hosted session. The idempotency key is sent as the
// Idempotency-Key header so retries cannot open a second session.
func (g *HTTPGateway) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if err := req.Validate(); err != nil {
		return Session{}, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Session{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := g.Client.Do(ctx, httpReq)
	if err != nil {
		return Session{}, fmt.Errorf("payment: create session: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Session{}, fmt.Errorf("payment: read response: %w", err)
	}
	var out sessionResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			if resp.StatusCode >= 300 {
				return Session{}, &RejectedError{Status: resp.StatusCode}
			}
			return Session{}, fmt.Errorf("payment: decode response: %w", err)
		}
	}
	if resp.StatusCode >= 300 || out.Error != "" {
		return Session{}, &RejectedError{Status: resp.StatusCode, Message: out.Error}
	}
	if strings.TrimSpace(out.URL) == "" {
		return Session{}, ErrNoURL
	}
	return Session{URL: out.URL}, nil
}
