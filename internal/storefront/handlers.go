package storefront

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/yevea-countertop/internal/cart"
	"github.com/noah-isme/yevea-countertop/internal/checkout"
	"github.com/noah-isme/yevea-countertop/internal/common"
	"github.com/noah-isme/yevea-countertop/internal/configurator"
	"github.com/noah-isme/yevea-countertop/internal/pricing"
	"github.com/noah-isme/yevea-countertop/internal/security"
)

const productTitle = "Solid olive wood countertop"

// Handler serves the server-authoritative form flow on "/". Every POST is
// validated server side and answered with the re-rendered page or a 303
// redirect to the hosted payment page.
type Handler struct {
	Calc     *pricing.Calculator
	Namer    configurator.Namer
	Carts    *cart.Store
	Config   *configurator.Repository
	Checkout *checkout.Orchestrator
	Currency string
	Logger   zerolog.Logger
}

// outcome is what one request renders.
type outcome struct {
	status  int
	raw     pricing.RawDimensions
	state   configurator.State
	cart    cart.Cart
	message string
	err     error
	warning error
}

// Show handles GET /. Dimensions may be preset through the query string.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := common.SessionID(r.Context())
	if !ok {
		http.Error(w, "session required", http.StatusUnauthorized)
		return
	}
	state, stateWarn := h.loadState(r.Context(), sessionID)
	c, cartWarn := h.Carts.Load(r.Context(), sessionID)
	h.respond(w, r, sessionID, outcome{
		status:  http.StatusOK,
		raw:     rawDimensions(r.URL.Query()),
		state:   state,
		cart:    c,
		warning: firstWarning(cartWarn, stateWarn),
	})
}

// Submit handles POST / for the add_to_cart, remove_item and checkout actions.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := common.SessionID(r.Context())
	if !ok {
		http.Error(w, "session required", http.StatusUnauthorized)
		return
	}
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		c, _ := h.Carts.Load(ctx, sessionID)
		state, _ := h.loadState(ctx, sessionID)
		h.respond(w, r, sessionID, outcome{state: state, cart: c, err: common.ValidationError(err)})
		return
	}

	state, stateWarn := h.loadState(ctx, sessionID)
	edgesChanged := applyEdges(&state, r.PostForm)
	usageChanged := applyUsage(&state, r.PostForm)
	out := outcome{status: http.StatusOK, raw: rawDimensions(r.PostForm), state: state, warning: stateWarn}

	switch action := strings.TrimSpace(r.PostForm.Get(fieldAction)); action {
	case ActionAddToCart:
		h.addToCart(ctx, sessionID, r.PostForm, edgesChanged || usageChanged, &out)
	case ActionRemoveItem:
		c, err := h.Carts.Remove(ctx, sessionID, strings.TrimSpace(r.PostForm.Get(fieldItemID)))
		out.cart = c
		if err != nil && !common.IsKind(err, common.KindPersistence) {
			out.err = err
			break
		}
		out.warning = firstWarning(err, out.warning)
	case ActionCheckout:
		c, _ := h.Carts.Load(ctx, sessionID)
		out.cart = c
		if h.Checkout == nil {
			out.err = common.GatewayError(errors.New("checkout not configured"))
			break
		}
		redirect, err := h.Checkout.Checkout(ctx, sessionID, c)
		if err != nil {
			out.err = err
			break
		}
		http.Redirect(w, r, redirect.URL, http.StatusSeeOther)
		return
	default:
		c, _ := h.Carts.Load(ctx, sessionID)
		out.cart = c
		out.err = common.ValidationError(errors.New("unknown action " + action))
	}
	h.respond(w, r, sessionID, out)
}

func (h *Handler) addToCart(ctx context.Context, sessionID string, form url.Values, configChanged bool, out *outcome) {
	dims, err := pricing.Validate(out.raw)
	if err != nil {
		out.cart, _ = h.Carts.Load(ctx, sessionID)
		out.err = err
		return
	}
	if configChanged && h.Config != nil {
		// Reapply the form onto the latest stored state under the session lock.
		state, err := h.Config.Update(ctx, sessionID, func(s *configurator.State) {
			applyEdges(s, form)
			applyUsage(s, form)
		})
		if !common.IsKind(err, common.KindInternal) {
			out.state = state
		}
		if err != nil {
			out.warning = firstWarning(out.warning, err)
		}
	}
	item := cart.NewLineItem(h.Calc, h.Namer, dims, out.state, h.Currency)
	c, err := h.Carts.Add(ctx, sessionID, item)
	out.cart = c
	if err != nil && !common.IsKind(err, common.KindPersistence) {
		out.err = err
		return
	}
	out.warning = firstWarning(err, out.warning)
	if errors.Is(err, cart.ErrUnavailable) {
		return
	}
	out.message = cart.MsgAdded + item.ProductName
}

func (h *Handler) loadState(ctx context.Context, sessionID string) (configurator.State, error) {
	if h.Config == nil {
		return configurator.NewState().WithOtherDefault(h.Namer.OtherDefault), nil
	}
	return h.Config.Load(ctx, sessionID)
}

// respond renders the page. The price preview runs on a per-request copy of
// the calculator so the schema sink never leaks across requests.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, sessionID string, out outcome) {
	raw := out.raw
	if strings.TrimSpace(raw.Length+raw.Width+raw.Thickness) == "" {
		def := pricing.DefaultDimensions()
		raw = pricing.RawDimensions{
			Length:    pricing.FormatNumber(def.Length),
			Width:     pricing.FormatNumber(def.Width),
			Thickness: pricing.FormatNumber(def.Thickness),
		}
	}

	schema := &ProductSchema{Name: productTitle, Currency: h.Currency}
	calc := pricing.Calculator{Sink: schema}
	if h.Calc != nil {
		calc.Rates = h.Calc.Rates
	}
	quote, ok := calc.Quote(raw)
	if ok {
		schema.Name = h.Namer.Name(quote.Dimensions, out.state.Edges, out.state.Usage.Normalize())
	}

	data := newPageData(raw, calc.Rates, out.state)
	if len(data.Thicknesses) == 0 {
		data = newPageData(raw, pricing.DefaultRates(), out.state)
	}
	data.CSRFToken = security.Token(r.Context())
	data.Message = out.message
	data.HasPrice = ok
	if ok {
		data.Price = quote.Price.StringFixed(2)
	}
	data.CurrencySymbol = pricing.CurrencySymbol(h.Currency)
	data.Schema = schema.JSONLD()
	data.Cart = cart.NewView(out.cart, h.Currency)
	data.ProcessingLabel = checkout.ProcessingLabel
	if h.Checkout != nil {
		data.Processing = h.Checkout.State(sessionID) == checkout.Submitting
	}
	data.OtherPlaceholder = h.Namer.OtherDefault
	if data.OtherPlaceholder == "" {
		data.OtherPlaceholder = configurator.DefaultOtherText
	}

	status := out.status
	if out.err != nil {
		data.Error, status = common.UserMessage(out.err)
		h.Logger.Info().Err(out.err).Str("session_id", sessionID).Msg("form submission rejected")
	}
	if out.warning != nil {
		data.Warning, _ = common.UserMessage(out.warning)
	}
	if status == 0 {
		status = http.StatusOK
	}
	if err := render(w, status, data); err != nil {
		h.Logger.Error().Err(err).Msg("render storefront page")
	}
}

func firstWarning(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
