package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/yevea-countertop/internal/cache"
	"github.com/noah-isme/yevea-countertop/internal/cart"
	"github.com/noah-isme/yevea-countertop/internal/common"
	"github.com/noah-isme/yevea-countertop/internal/configurator"
	"github.com/noah-isme/yevea-countertop/internal/lock"
	"github.com/noah-isme/yevea-countertop/internal/obs"
	"github.com/noah-isme/yevea-countertop/internal/payment"
	"github.com/noah-isme/yevea-countertop/internal/pricing"
	"github.com/noah-isme/yevea-countertop/internal/receipt"
)

// ProcessingLabel replaces the checkout button text while a submission is in flight.
const ProcessingLabel = "Processing… ⏳"

const (
	defaultTimeout  = 10 * time.Second
	defaultCurrency = "eur"
	phaseTTL        = 30 * time.Minute
	pruneThreshold  = 1024
	guardSlack      = 5 * time.Second
)

var defaultMinOrder = decimal.NewFromInt(175)

// Phase is the per-session checkout state.
type Phase int

const (
	Idle Phase = iota
	Submitting
	Redirecting
	ErrorShown
)

func (p Phase) String() string {
	switch p {
	case Submitting:
		return "submitting"
	case Redirecting:
		return "redirecting"
	case ErrorShown:
		return "error_shown"
	default:
		return "idle"
	}
}

// Redirect is the hosted payment page for a successful checkout.
type Redirect struct {
	URL            string `json:"url"`
	IdempotencyKey string `json:"-"`
}

type phaseEntry struct {
	phase Phase
	at    time.Time
}

// Orchestrator validates a cart, opens a hosted payment session and tracks
// the checkout phase of every session. Guard, when set, extends the
// in-flight check across replicas.
type Orchestrator struct {
	Calc     *pricing.Calculator
	Gateway  payment.Gateway
	Guard    lock.TryLocker
	MinOrder decimal.Decimal
	Currency string
	Timeout  time.Duration
	Receipts receipt.Enqueuer
	Logger   zerolog.Logger
	Now      func() time.Time

	mu     sync.Mutex
	phases map[string]phaseEntry
}

// State reports the checkout phase of sessionID.
func (o *Orchestrator) State(sessionID string) Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.phases[sessionID]
	if !ok || (e.phase != Submitting && o.now().Sub(e.at) > phaseTTL) {
		return Idle
	}
	return e.phase
}

// Label is the checkout button text for sessionID.
func (o *Orchestrator) Label(sessionID string) string {
	if o.State(sessionID) == Submitting {
		return ProcessingLabel
	}
	return ""
}

// Checkout runs one checkout for sessionID. At most one gateway request per
// session is in flight; a concurrent trigger gets a conflict error. Prices
// are recomputed from the dimension snapshots before the gateway is contacted.
func (o *Orchestrator) Checkout(ctx context.Context, sessionID string, c cart.Cart) (Redirect, error) {
	ctx, span := otel.Tracer("checkout.Orchestrator").Start(ctx, "Orchestrator.Checkout")
	defer span.End()

	release, claimed := o.claim(ctx, sessionID)
	if !claimed {
		return Redirect{}, conflict(span)
	}
	defer release()
	if !o.begin(sessionID) {
		return Redirect{}, conflict(span)
	}
	next := ErrorShown
	defer func() { o.finish(sessionID, next) }()

	logger := o.Logger.With().Str("session_id", sessionID).Logger()

	req, total, err := o.buildRequest(sessionID, c)
	if err != nil {
		result := common.KindOf(err).String()
		obs.ObserveCheckout(result, 0)
		span.SetAttributes(attribute.String("checkout.result", result))
		logger.Info().Err(err).Str("result", result).Msg("checkout rejected")
		return Redirect{}, err
	}
	span.SetAttributes(
		attribute.Int("checkout.lines", len(req.LineItems)),
		attribute.String("checkout.total", total.StringFixed(2)),
	)

	if o.Gateway == nil {
		obs.ObserveCheckout("gateway_error", 0)
		logger.Error().Msg("payment gateway not configured")
		return Redirect{}, common.GatewayError(errors.New("payment gateway not configured"))
	}
	callCtx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()
	start := time.Now()
	sess, err := o.Gateway.CreateSession(callCtx, req)
	latency := time.Since(start)
	if err == nil && strings.TrimSpace(sess.URL) == "" {
		err = payment.ErrNoURL
	}
	if err != nil {
		obs.ObserveCheckout("gateway_error", latency)
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway")
		span.SetAttributes(attribute.String("checkout.result", "gateway_error"))
		logger.Error().Err(err).
			Str("idempotency_key", req.IdempotencyKey).
			Dur("latency", latency).
			Msg("create payment session failed")
		return Redirect{}, common.GatewayError(err)
	}

	next = Redirecting
	obs.ObserveCheckout("success", latency)
	span.SetAttributes(attribute.String("checkout.result", "success"))
	logger.Info().Str("idempotency_key", req.IdempotencyKey).Str("total", total.StringFixed(2)).Msg("payment session created")

	o.sendReceipt(ctx, logger, sessionID, c, req, total, sess.URL)
	return Redirect{URL: sess.URL, IdempotencyKey: req.IdempotencyKey}, nil
}

func (o *Orchestrator) buildRequest(sessionID string, c cart.Cart) (payment.SessionRequest, decimal.Decimal, error) {
	if c.IsEmpty() {
		return payment.SessionRequest{}, decimal.Zero, common.EmptyCartError()
	}
	items := c.Items()
	lines := make([]payment.LineItem, 0, len(items))
	total := decimal.Zero
	for _, it := range items {
		price := o.Calc.Price(it.Dimensions)
		if !price.IsPositive() {
			return payment.SessionRequest{}, decimal.Zero, common.InvalidPriceError(errors.New("recomputed price is not positive for item " + it.ID))
		}
		total = total.Add(price)
		name := it.ProductName
		if name == "" {
			name = configurator.ProductName(it.Dimensions, it.Edges, it.Usage)
		}
		lines = append(lines, payment.LineItem{
			Description: name,
			Amount:      pricing.MinorUnits(price),
			Currency:    o.currency(),
			Quantity:    1,
		})
	}
	minOrder := o.minOrder()
	if total.LessThan(minOrder) {
		return payment.SessionRequest{}, total, common.MinimumOrderError(minimumOrderMessage(minOrder, o.currency()))
	}
	return payment.SessionRequest{
		LineItems:      lines,
		IdempotencyKey: IdempotencyKey(sessionID, items, lines),
	}, total, nil
}

// IdempotencyKey derives a stable key from the session and the cart contents,
// so retrying the same cart never opens a second payment session.
func IdempotencyKey(sessionID string, items []cart.LineItem, lines []payment.LineItem) string {
	var b strings.Builder
	for i, it := range items {
		b.WriteString(it.ID)
		b.WriteByte('|')
		b.WriteString(pricing.FormatNumber(it.Dimensions.Length))
		b.WriteByte('x')
		b.WriteString(pricing.FormatNumber(it.Dimensions.Width))
		b.WriteByte('x')
		b.WriteString(pricing.FormatNumber(it.Dimensions.Thickness))
		if i < len(lines) {
			b.WriteByte('|')
			b.WriteString(lines[i].Description)
			b.WriteByte('|')
			b.WriteString(decimal.NewFromInt(lines[i].Amount).String())
			b.WriteString(lines[i].Currency)
		}
		b.WriteByte('\n')
	}
	return common.Sha256Hex(sessionID + ":" + common.Sha256Hex(b.String()))
}

func (o *Orchestrator) sendReceipt(ctx context.Context, logger zerolog.Logger, sessionID string, c cart.Cart, req payment.SessionRequest, total decimal.Decimal, url string) {
	if o.Receipts == nil {
		return
	}
	items := c.Items()
	lines := make([]receipt.Line, 0, len(items))
	for i, li := range req.LineItems {
		lines = append(lines, receipt.Line{ProductName: li.Description, Price: o.Calc.Price(items[i].Dimensions)})
	}
	r := receipt.Receipt{
		SessionID:      sessionID,
		IdempotencyKey: req.IdempotencyKey,
		Currency:       o.currency(),
		Lines:          lines,
		Total:          total,
		RedirectURL:    url,
		CreatedAt:      o.now().UTC(),
	}
	if err := o.Receipts.Enqueue(context.WithoutCancel(ctx), r); err != nil {
		logger.Warn().Err(err).Msg("enqueue receipt failed")
	}
}

func conflict(span trace.Span) error {
	obs.ObserveCheckout("conflict", 0)
	span.SetAttributes(attribute.String("checkout.result", "conflict"))
	return common.ConflictError(errors.New(common.MsgCheckoutGuard))
}

// claim takes the cross-replica guard for sessionID. A guard backend failure
// is logged and the checkout proceeds on the in-process guard alone.
func (o *Orchestrator) claim(ctx context.Context, sessionID string) (func(), bool) {
	noop := func() {}
	if o.Guard == nil {
		return noop, true
	}
	release, ok, err := o.Guard.TryLock(ctx, cache.KeyCheckoutLock(sessionID), o.timeout()+guardSlack)
	if err != nil {
		o.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("checkout guard unavailable")
		return noop, true
	}
	if !ok {
		return noop, false
	}
	return release, true
}

func (o *Orchestrator) begin(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phases == nil {
		o.phases = make(map[string]phaseEntry)
	}
	if e, ok := o.phases[sessionID]; ok && e.phase == Submitting {
		return false
	}
	now := o.now()
	if len(o.phases) >= pruneThreshold {
		for id, e := range o.phases {
			if e.phase != Submitting && now.Sub(e.at) > phaseTTL {
				delete(o.phases, id)
			}
		}
	}
	o.phases[sessionID] = phaseEntry{phase: Submitting, at: now}
	return true
}

func (o *Orchestrator) finish(sessionID string, p Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases[sessionID] = phaseEntry{phase: p, at: o.now()}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultTimeout
	}
	return o.Timeout
}

func (o *Orchestrator) currency() string {
	if o.Currency == "" {
		return defaultCurrency
	}
	return o.Currency
}

func minimumOrderMessage(amount decimal.Decimal, currency string) string {
	return "The minimum order is " + amount.String() + " " + pricing.CurrencySymbol(currency) + "."
}

func (o *Orchestrator) minOrder() decimal.Decimal {
	if !o.MinOrder.IsPositive() {
		return defaultMinOrder
	}
	return o.MinOrder
}
