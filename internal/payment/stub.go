package payment

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/noah-isme/yevea-countertop/internal/common"
)

const defaultStubBaseURL = "https://checkout.stub.local/pay"

// StubGateway synthesises a deterministic hosted-session url without any
// network call. Used for local development.
type StubGateway struct {
	BaseURL string
}

// CreateSession derives the session token from the idempotency key, or from
// the request contents when no key is set.
func (s StubGateway) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if err := req.Validate(); err != nil {
		return Session{}, err
	}
	token := req.IdempotencyKey
	if token == "" {
		b, _ := json.Marshal(req)
		token = common.Sha256Hex(string(b))
	}
	if len(token) > 32 {
		token = token[:32]
	}
	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if base == "" {
		base = defaultStubBaseURL
	}
	return Session{URL: base + "/cs_" + token}, nil
}
