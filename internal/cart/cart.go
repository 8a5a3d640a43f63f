package cart

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/yevea-countertop/internal/configurator"
	"github.com/noah-isme/yevea-countertop/internal/pricing"
)

// MsgEmpty is shown in place of an empty cart.
const MsgEmpty = "Your cart is empty."

// LineItem is an immutable snapshot of one configured countertop.
type LineItem struct {
	ID          string             `json:"id"`
	Dimensions  pricing.Dimensions `json:"dimensions"`
	Price       decimal.Decimal    `json:"price"`
	Currency    string             `json:"currency"`
	Edges       configurator.Edges `json:"edges"`
	EdgeCode    string             `json:"edgeCode"`
	Usage       configurator.Usage `json:"usage"`
	ProductName string             `json:"productName"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// NewLineItem snapshots the current dimensions and configuration into an
// unsaved line item priced by calc. ID and CreatedAt are set by Store.Add.
func NewLineItem(calc *pricing.Calculator, namer configurator.Namer, d pricing.Dimensions, state configurator.State, currency string) LineItem {
	d = d.Clamp()
	usage := state.Usage.Normalize()
	return LineItem{
		Dimensions:  d,
		Price:       calc.Price(d),
		Currency:    currency,
		Edges:       state.Edges,
		EdgeCode:    state.Edges.Code(),
		Usage:       usage,
		ProductName: namer.Name(d, state.Edges, usage),
	}
}

// Cart is an ordered list of line items. Only Store mutates it.
type Cart struct {
	items []LineItem
}

// Items returns a copy of the line items in insertion order.
func (c Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of line items.
func (c Cart) Len() int { return len(c.items) }

// IsEmpty reports whether the cart has no items.
func (c Cart) IsEmpty() bool { return len(c.items) == 0 }

// Total returns the exact sum of item prices; zero when empty.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Price)
	}
	return total
}

func (c Cart) with(item LineItem) Cart {
	items := make([]LineItem, 0, len(c.items)+1)
	items = append(items, c.items...)
	return Cart{items: append(items, item)}
}

func (c Cart) without(id string) (Cart, bool) {
	items := make([]LineItem, 0, len(c.items))
	removed := false
	for _, it := range c.items {
		if it.ID == id && !removed {
			removed = true
			continue
		}
		items = append(items, it)
	}
	return Cart{items: items}, removed
}

type cartBlob struct {
	Items []LineItem `json:"items"`
}

// MarshalJSON implements json.Marshaler.
func (c Cart) MarshalJSON() ([]byte, error) {
	items := c.items
	if items == nil {
		items = []LineItem{}
	}
	return json.Marshal(cartBlob{Items: items})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Cart) UnmarshalJSON(b []byte) error {
	var blob cartBlob
	if err := json.Unmarshal(b, &blob); err != nil {
		return err
	}
	c.items = blob.Items
	return nil
}
