package cart

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/yevea-countertop/internal/common"
	"github.com/noah-isme/yevea-countertop/internal/configurator"
	"github.com/noah-isme/yevea-countertop/internal/pricing"
)

// MsgAdded prefixes the add-to-cart confirmation.
const MsgAdded = "Added to cart: "

// Handler wires the cart store to the interactive JSON API.
type Handler struct {
	Store    *Store
	Calc     *pricing.Calculator
	Namer    configurator.Namer
	Config   *configurator.Repository
	Currency string
}

// ItemView is the JSON shape of a line item.
type ItemView struct {
	ID          string             `json:"id"`
	ProductName string             `json:"productName"`
	Price       string             `json:"price"`
	Currency    string             `json:"currency"`
	Dimensions  pricing.Dimensions `json:"dimensions"`
	EdgeCode    string             `json:"edgeCode"`
	Edges       configurator.Edges `json:"edges"`
	Usage       configurator.Usage `json:"usage"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// View is the JSON shape of a cart.
type View struct {
	Items     []ItemView `json:"items"`
	Count     int        `json:"count"`
	Total     string     `json:"total"`
	Currency  string     `json:"currency"`
	EmptyText string     `json:"emptyText,omitempty"`
}

// NewView projects c for rendering.
func NewView(c Cart, currency string) View {
	items := c.Items()
	v := View{
		Items:    make([]ItemView, 0, len(items)),
		Count:    len(items),
		Total:    c.Total().StringFixed(2),
		Currency: currency,
	}
	for _, it := range items {
		v.Items = append(v.Items, ItemView{
			ID:          it.ID,
			ProductName: it.ProductName,
			Price:       it.Price.StringFixed(2),
			Currency:    it.Currency,
			Dimensions:  it.Dimensions,
			EdgeCode:    it.EdgeCode,
			Edges:       it.Edges,
			Usage:       it.Usage,
			CreatedAt:   it.CreatedAt,
		})
	}
	if c.IsEmpty() {
		v.EmptyText = MsgEmpty
	}
	return v
}

type addItemRequest struct {
	Length    pricing.Input       `json:"length"`
	Width     pricing.Input       `json:"width"`
	Thickness pricing.Input       `json:"thickness"`
	Edges     *configurator.Edges `json:"edges"`
	Category  string              `json:"category" validate:"omitempty,oneof=tabletop kitchen-countertop kitchen-island bathroom-countertop shelf other"`
	OtherText *string             `json:"otherText" validate:"omitempty,max=200"`
}

// Get handles GET /api/v1/cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	c, err := h.Store.Load(r.Context(), sessionID)
	h.writeCart(w, http.StatusOK, c, "", err)
}

// AddItem handles POST /api/v1/cart/items. Dimensions come from the payload;
// edges and usage default to the session's saved configuration.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var payload addItemRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	quote, ok := h.Calc.Quote(pricing.RawDimensions{
		Length:    string(payload.Length),
		Width:     string(payload.Width),
		Thickness: string(payload.Thickness),
	})
	if !ok {
		common.WriteError(w, common.InvalidPriceError(errors.New("dimensions not numeric")))
		return
	}

	state := configurator.NewState()
	if h.Config != nil {
		// A degraded configuration load still yields a usable default state.
		state, _ = h.Config.Load(r.Context(), sessionID)
	}
	if payload.Edges != nil {
		state.Edges = *payload.Edges
	}
	if c, ok := configurator.ParseCategory(payload.Category); ok {
		state.SetCategory(c)
	}
	if payload.OtherText != nil {
		state.SetOtherText(*payload.OtherText)
	}

	item := NewLineItem(h.Calc, h.Namer, quote.Dimensions, state, h.Currency)
	c, err := h.Store.Add(r.Context(), sessionID, item)
	if err != nil && !common.IsKind(err, common.KindPersistence) {
		common.WriteError(w, err)
		return
	}
	if errors.Is(err, ErrUnavailable) {
		h.writeCart(w, http.StatusOK, c, "", err)
		return
	}
	h.writeCart(w, http.StatusCreated, c, MsgAdded+item.ProductName, err)
}

// RemoveItem handles DELETE /api/v1/cart/items/{id}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	c, err := h.Store.Remove(r.Context(), sessionID, id)
	h.writeCart(w, http.StatusOK, c, "", err)
}

func (h *Handler) writeCart(w http.ResponseWriter, status int, c Cart, message string, err error) {
	if err != nil && !common.IsKind(err, common.KindPersistence) {
		common.WriteError(w, err)
		return
	}
	body := map[string]any{"data": NewView(c, h.Currency)}
	if message != "" {
		body["message"] = message
	}
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			body["warning"] = appErr.Message
		}
	}
	common.JSON(w, status, body)
}

func sessionFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID, ok := common.SessionID(r.Context())
	if !ok || sessionID == "" {
		common.JSONError(w, http.StatusUnauthorized, "NO_SESSION", "session required", nil)
		return "", false
	}
	return sessionID, true
}
