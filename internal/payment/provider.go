package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Providers selectable through PAYMENT_PROVIDER.
const (
	ProviderStub = "stub"
	ProviderHTTP = "http"
)

// LineItem is one entry of a hosted payment session. Amount is in minor units.
type LineItem struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Quantity    int    `json:"quantity"`
}

// SessionRequest captures what the gateway needs to open a hosted session.
// IdempotencyKey travels as a header, never in the body.
type SessionRequest struct {
	LineItems      []LineItem `json:"lineItems"`
	IdempotencyKey string     `json:"-"`
}

// Session is the hosted payment page the buyer is redirected to.
type Session struct {
	URL string `json:"url"`
}

// Gateway abstracts the upstream hosted-checkout provider.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

var (
	// ErrNoLineItems is returned for a request without any line.
	ErrNoLineItems = errors.New("payment: session requires at least one line item")
	// ErrNoURL is returned when the gateway answered without a redirect url.
	ErrNoURL = errors.New("payment: gateway response carried no url")
)

// RejectedError reports an explicit error answer from the gateway.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment: gateway rejected session (status %d)", e.Status)
	}
	return fmt.Sprintf("payment: gateway rejected session (status %d): %s", e.Status, e.Message)
}

// Validate checks the request before it leaves the process.
func (r SessionRequest) Validate() error {
	if len(r.LineItems) == 0 {
		return ErrNoLineItems
	}
	for i, li := range r.LineItems {
		if strings.TrimSpace(li.Description) == "" {
			return fmt.Errorf("payment: line %d has no description", i)
		}
		if li.Amount <= 0 {
			return fmt.Errorf("payment: line %d amount must be positive", i)
		}
		if li.Quantity <= 0 {
			return fmt.Errorf("payment: line %d quantity must be positive", i)
		}
		if strings.TrimSpace(li.Currency) == "" {
			return fmt.Errorf("payment: line %d has no currency", i)
		}
	}
	return nil
}

// New returns the gateway for provider. client is only used by the http provider.
func New(provider, endpoint string, client Doer) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderStub:
		return StubGateway{}, nil
	case ProviderHTTP:
		gw, err := NewHTTPGateway(endpoint, client)
		if err != nil {
			return nil, err
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("payment: unsupported provider %q", provider)
	}
}
