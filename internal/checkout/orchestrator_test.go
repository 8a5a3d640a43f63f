package checkout_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/yevea-countertop/internal/cache"
	"github.com/noah-isme/yevea-countertop/internal/cart"
	"github.com/noah-isme/yevea-countertop/internal/checkout"
	"github.com/noah-isme/yevea-countertop/internal/common"
	"github.com/noah-isme/yevea-countertop/internal/configurator"
	"github.com/noah-isme/yevea-countertop/internal/lock"
	"github.com/noah-isme/yevea-countertop/internal/payment"
	"github.com/noah-isme/yevea-countertop/internal/pricing"
	"github.com/noah-isme/yevea-countertop/internal/receipt"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []payment.SessionRequest
	calls    atomic.Int32
	entered  chan struct{}
	release  chan struct{}
	err      error
}

func (g *fakeGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return payment.Session{}, ctx.Err()
		}
	}
	if g.err != nil {
		return payment.Session{}, g.err
	}
	return payment.Session{URL: "https://pay.example/cs_" + req.IdempotencyKey[:8]}, nil
}

type fakeReceipts struct {
	mu   sync.Mutex
	sent []receipt.Receipt
	err  error
}

func (f *fakeReceipts) Enqueue(ctx context.Context, r receipt.Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, r)
	return f.err
}

func buildCart(t *testing.T, calc *pricing.Calculator, dims ...pricing.Dimensions) cart.Cart {
	t.Helper()
	store := &cart.Store{Substrate: cache.NewMemory(), Locker: lock.NewLocal(), Logger: zerolog.Nop()}
	var c cart.Cart
	for _, d := range dims {
		item := cart.NewLineItem(calc, configurator.Namer{}, d, configurator.NewState(), "eur")
		var err error
		c, err = store.Add(context.Background(), "builder", item)
		require.NoError(t, err)
	}
	return c
}

func newOrchestrator(gw payment.Gateway, calc *pricing.Calculator) *checkout.Orchestrator {
	return &checkout.Orchestrator{
		Calc:     calc,
		Gateway:  gw,
		MinOrder: decimal.NewFromInt(175),
		Currency: "eur",
		Timeout:  time.Second,
		Logger:   zerolog.Nop(),
	}
}

func TestCheckoutEmptyCartNeverContactsGateway(t *testing.T) {
	gw := &fakeGateway{}
	o := newOrchestrator(gw, pricing.NewCalculator(nil))

	_, err := o.Checkout(context.Background(), "sid", cart.Cart{})
	require.True(t, common.IsKind(err, common.KindEmptyCart))
	require.Equal(t, int32(0), gw.calls.Load())
	require.Equal(t, checkout.ErrorShown, o.State("sid"))
}

func TestCheckoutMinimumOrderBoundary(t *testing.T) {
	dims := pricing.Dimensions{Length: 50, Width: 20, Thickness: 3}

	below := pricing.NewCalculator(pricing.RateTable{3: decimal.RequireFromString("1749.9")})
	gw := &fakeGateway{}
	_, err := newOrchestrator(gw, below).Checkout(context.Background(), "sid", buildCart(t, below, dims))
	require.True(t, common.IsKind(err, common.KindMinimumOrder))
	require.Equal(t, int32(0), gw.calls.Load())

	atMin := pricing.NewCalculator(pricing.RateTable{3: decimal.RequireFromString("1750")})
	redirect, err := newOrchestrator(gw, atMin).Checkout(context.Background(), "sid", buildCart(t, atMin, dims))
	require.NoError(t, err)
	require.NotEmpty(t, redirect.URL)
	require.Equal(t, int32(1), gw.calls.Load())
	require.Equal(t, int64(17500), gw.requests[0].LineItems[0].Amount)
}

func TestCheckoutMinimumOrderMessageUsesCurrency(t *testing.T) {
	calc := pricing.NewCalculator(nil)
	c := buildCart(t, calc, pricing.Dimensions{Length: 50, Width: 20, Thickness: 3})

	o := newOrchestrator(&fakeGateway{}, calc)
	_, err := o.Checkout(context.Background(), "eur-sid", c)
	msg, _ := common.UserMessage(err)
	require.Equal(t, "The minimum order is 175 €.", msg)

	o = newOrchestrator(&fakeGateway{}, calc)
	o.Currency = "usd"
	o.MinOrder = decimal.NewFromInt(200)
	_, err = o.Checkout(context.Background(), "usd-sid", c)
	msg, _ = common.UserMessage(err)
	require.Equal(t, "The minimum order is 200 $.", msg)
}

func TestCheckoutRecomputesPrices(t *testing.T) {
	calc := pricing.NewCalculator(nil)
	store := &cart.Store{Substrate: cache.NewMemory(), Locker: lock.NewLocal(), Logger: zerolog.Nop()}
	item := cart.NewLineItem(calc, configurator.Namer{}, pricing.Dimensions{Length: 300, Width: 100, Thickness: 7}, configurator.NewState(), "eur")
	item.Price = decimal.NewFromInt(1)
	c, err := store.Add(context.Background(), "sid", item)
	require.NoError(t, err)

	gw := &fakeGateway{}
	_, err = newOrchestrator(gw, calc).Checkout(context.Background(), "sid", c)
	require.NoError(t, err)
	require.Len(t, gw.requests, 1)
	line := gw.requests[0].LineItems[0]
	require.Equal(t, int64(450000), line.Amount)
	require.Equal(t, "eur", line.Currency)
	require.Equal(t, 1, line.Quantity)
	require.Equal(t, "31-iiii. Tabletop 300x100x7 cm, all straight edges", line.Description)
}

func TestConcurrentCheckoutContactsGatewayOnce(t *testing.T) {
	calc := pricing.NewCalculator(nil)
	c := buildCart(t, calc, pricing.Dimensions{Length: 300, Width: 100, Thickness: 7})
	gw := &fakeGateway{entered: make(chan struct{}, 1), release: make(chan struct{})}
	o := newOrchestrator(gw, calc)

	type result struct {
		redirect checkout.Redirect
		err      error
	}
	first := make(chan result, 1)
	go func() {
		r, err := o.Checkout(context.Background(), "sid", c)
		first <- result{r, err}
	}()
	<-gw.entered
	require.Equal(t, checkout.Submitting, o.State("sid"))
	require.Equal(t, checkout.ProcessingLabel, o.Label("sid"))

	_, err := o.Checkout(context.Background(), "sid", c)
	require.True(t, common.IsKind(err, common.KindConflict))

	close(gw.release)
	res := <-first
	require.NoError(t, res.err)
	require.NotEmpty(t, res.redirect.URL)
	require.Equal(t, int32(1), gw.calls.Load())
	require.Equal(t, checkout.Redirecting, o.State("sid"))
	require.Empty(t, o.Label("sid"))
}

func TestCheckoutGuardSpansReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	guard := lock.Redis{R: client}

	calc := pricing.NewCalculator(nil)
	c := buildCart(t, calc, pricing.Dimensions{Length: 300, Width: 100, Thickness: 7})
	gw := &fakeGateway{entered: make(chan struct{}, 1), release: make(chan struct{})}
	replicaA := newOrchestrator(gw, calc)
	replicaA.Guard = guard
	replicaB := newOrchestrator(gw, calc)
	replicaB.Guard = guard

	first := make(chan error, 1)
	go func() {
		_, err := replicaA.Checkout(context.Background(), "sid", c)
		first <- err
	}()
	<-gw.entered

	_, err := replicaB.Checkout(context.Background(), "sid", c)
	require.True(t, common.IsKind(err, common.KindConflict))
	require.Equal(t, checkout.Idle, replicaB.State("sid"))

	close(gw.release)
	require.NoError(t, <-first)
	require.Equal(t, int32(1), gw.calls.Load())
	require.False(t, mr.Exists(cache.KeyCheckoutLock("sid")))
}

func TestCheckoutGuardFailureFallsBackToLocalGuard(t *testing.T) {
	calc := pricing.NewCalculator(nil)
	c := buildCart(t, calc, pricing.Dimensions{Length: 300, Width: 100, Thickness: 7})
	gw := &fakeGateway{}
	o := newOrchestrator(gw, calc)
	o.Guard = lock.Redis{}

	redirect, err := o.Checkout(context.Background(), "sid", c)
	require.NoError(t, err)
	require.NotEmpty(t, redirect.URL)
}

func TestCheckoutGatewayTimeoutIsRetryable(t *testing.T) {
	calc := pricing.NewCalculator(nil)
	c := buildCart(t, calc, pricing.Dimensions{Length: 300, Width: 100, Thickness: 7})
	gw := &fakeGateway{release: make(chan struct{})}
	o := newOrchestrator(gw, calc)
	o.Timeout = 20 * time.Millisecond

	_, err := o.Checkout(context.Background(), "sid", c)
	require.True(t, common.IsKind(err, common.KindGateway))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, common.MsgGateway, appErr.Message)
	require.Equal(t, checkout.ErrorShown, o.State("sid"))

	close(gw.release)
	_, err = o.Checkout(context.Background(), "sid", c)
	require.NoError(t, err)
	require.Equal(t, int32(2), gw.calls.Load())
}

func TestCheckoutGatewayErrorIsSanitised(t *testing.T) {
	calc := pricing.NewCalculator(nil)
	c := buildCart(t, calc, pricing.Dimensions{Length: 300, Width: 100, Thickness: 7})
	gw := &fakeGateway{err: errors.New("stripe: secret key sk_live_xxx rejected")}

	_, err := newOrchestrator(gw, calc).Checkout(context.Background(), "sid", c)
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, common.KindGateway, appErr.Kind)
	require.NotContains(t, appErr.Message, "sk_live")
}

func TestIdempotencyKeyStablePerSessionAndCart(t *testing.T) {
	calc := pricing.NewCalculator(nil)
	c := buildCart(t, calc, pricing.Dimensions{Length: 300, Width: 100, Thickness: 7})
	gw := &fakeGateway{}
	o := newOrchestrator(gw, calc)

	a, err := o.Checkout(context.Background(), "sid-a", c)
	require.NoError(t, err)
	again, err := o.Checkout(context.Background(), "sid-a", c)
	require.NoError(t, err)
	b, err := o.Checkout(context.Background(), "sid-b", c)
	require.NoError(t, err)

	require.Equal(t, a.IdempotencyKey, again.IdempotencyKey)
	require.NotEqual(t, a.IdempotencyKey, b.IdempotencyKey)
	require.Equal(t, gw.requests[0].IdempotencyKey, a.IdempotencyKey)
}

func TestCheckoutEnqueuesReceiptBestEffort(t *testing.T) {
	calc := pricing.NewCalculator(nil)
	c := buildCart(t, calc,
		pricing.Dimensions{Length: 300, Width: 100, Thickness: 7},
		pricing.Dimensions{Length: 80, Width: 30, Thickness: 3},
	)
	receipts := &fakeReceipts{err: errors.New("queue down")}
	o := newOrchestrator(&fakeGateway{}, calc)
	o.Receipts = receipts

	redirect, err := o.Checkout(context.Background(), "sid", c)
	require.NoError(t, err)
	require.Len(t, receipts.sent, 1)
	sent := receipts.sent[0]
	require.Equal(t, redirect.IdempotencyKey, sent.IdempotencyKey)
	require.Equal(t, redirect.URL, sent.RedirectURL)
	require.Len(t, sent.Lines, 2)
	require.Equal(t, "4716.00", sent.Total.StringFixed(2))
}

func TestPhaseStrings(t *testing.T) {
	require.Equal(t, "idle", checkout.Idle.String())
	require.Equal(t, "submitting", checkout.Submitting.String())
	require.Equal(t, "redirecting", checkout.Redirecting.String())
	require.Equal(t, "error_shown", checkout.ErrorShown.String())
	o := &checkout.Orchestrator{}
	require.Equal(t, checkout.Idle, o.State("unknown"))
}
