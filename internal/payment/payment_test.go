package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/yevea-countertop/internal/payment"
	"github.com/noah-isme/yevea-countertop/internal/resilience"
)

func sampleRequest() payment.SessionRequest {
	return payment.SessionRequest{
		LineItems: []payment.LineItem{{
			Description: "31-iiii. Tabletop 80x30x3 cm, all straight edges",
			Amount:      21600,
			Currency:    "eur",
			Quantity:    1,
		}},
		IdempotencyKey: "abc123",
	}
}

func newClient(srv *httptest.Server) resilience.HTTPClient {
	return resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 3, BaseBackoff: time.Millisecond, Target: "payment_gateway"}
}

func TestHTTPGatewayCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "abc123", r.Header.Get("Idempotency-Key"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotContains(t, body, "IdempotencyKey")
		items := body["lineItems"].([]any)
		require.Len(t, items, 1)
		line := items[0].(map[string]any)
		require.Equal(t, float64(21600), line["amount"])
		require.Equal(t, "eur", line["currency"])
		require.Equal(t, float64(1), line["quantity"])
		_, _ = w.Write([]byte(`{"url":"https://pay.example/cs_1"}`))
	}))
	defer srv.Close()

	gw, err := payment.NewHTTPGateway(srv.URL, newClient(srv))
	require.NoError(t, err)
	sess, err := gw.CreateSession(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Equal(t, "https://pay.example/cs_1", sess.URL)
}

func TestHTTPGatewayErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"amount too small"}`))
	}))
	defer srv.Close()

	gw, err := payment.NewHTTPGateway(srv.URL, newClient(srv))
	require.NoError(t, err)
	_, err = gw.CreateSession(context.Background(), sampleRequest())
	var rejected *payment.RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, http.StatusBadRequest, rejected.Status)
	require.Equal(t, "amount too small", rejected.Message)
}

func TestHTTPGatewayMissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	gw, err := payment.NewHTTPGateway(srv.URL, newClient(srv))
	require.NoError(t, err)
	_, err = gw.CreateSession(context.Background(), sampleRequest())
	require.ErrorIs(t, err, payment.ErrNoURL)
}

func TestHTTPGatewayRetriesKeepIdempotencyKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "abc123", r.Header.Get("Idempotency-Key"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"url":"https://pay.example/cs_2"}`))
	}))
	defer srv.Close()

	gw, err := payment.NewHTTPGateway(srv.URL, newClient(srv))
	require.NoError(t, err)
	sess, err := gw.CreateSession(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Equal(t, "https://pay.example/cs_2", sess.URL)
	require.Equal(t, int32(2), calls.Load())
}

func TestNewHTTPGatewayRejectsBadURL(t *testing.T) {
	_, err := payment.NewHTTPGateway("not a url", resilience.HTTPClient{Client: http.DefaultClient})
	require.Error(t, err)
	_, err = payment.NewHTTPGateway("https://pay.example", nil)
	require.Error(t, err)
}

func TestStubGatewayDeterministic(t *testing.T) {
	gw := payment.StubGateway{}
	a, err := gw.CreateSession(context.Background(), sampleRequest())
	require.NoError(t, err)
	b, err := gw.CreateSession(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Equal(t, a.URL, b.URL)
	require.Equal(t, "https://checkout.stub.local/pay/cs_abc123", a.URL)

	_, err = gw.CreateSession(context.Background(), payment.SessionRequest{})
	require.ErrorIs(t, err, payment.ErrNoLineItems)
}

func TestNewSelectsProvider(t *testing.T) {
	gw, err := payment.New("stub", "", nil)
	require.NoError(t, err)
	require.IsType(t, payment.StubGateway{}, gw)

	_, err = payment.New("carrier-pigeon", "", nil)
	require.Error(t, err)
}
