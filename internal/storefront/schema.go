package storefront

import (
	"encoding/json"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductSchema collects the schema.org Product block rendered on the form
// page. It receives the offer price as a pricing.MetadataSink.
type ProductSchema struct {
	Name     string
	Currency string

	price *decimal.Decimal
}

// SetOfferPrice implements pricing.MetadataSink.
func (s *ProductSchema) SetOfferPrice(price decimal.Decimal) {
	p := price
	s.price = &p
}

// Price returns the last offer price and whether one was set.
func (s *ProductSchema) Price() (decimal.Decimal, bool) {
	if s == nil || s.price == nil {
		return decimal.Zero, false
	}
	return *s.price, true
}

type offer struct {
	Type          string `json:"@type"`
	Price         string `json:"price"`
	PriceCurrency string `json:"priceCurrency"`
	Availability  string `json:"availability"`
}

type product struct {
	Context string `json:"@context"`
	Type    string `json:"@type"`
	Name    string `json:"name"`
	Offers  *offer `json:"offers,omitempty"`
}

// JSONLD renders the block for a <script type="application/ld+json"> element.
// The offer is omitted until a price has been set.
func (s *ProductSchema) JSONLD() template.JS {
	doc := product{Context: "https://schema.org", Type: "Product", Name: s.Name}
	if p, ok := s.Price(); ok {
		doc.Offers = &offer{
			Type:          "Offer",
			Price:         p.StringFixed(2),
			PriceCurrency: strings.ToUpper(s.Currency),
			Availability:  "https://schema.org/MadeToOrder",
		}
	}
	// json.Marshal escapes <, > and &, so the output is safe inside a script element.
	b, err := json.Marshal(doc)
	if err != nil {
		return template.JS("{}")
	}
	return template.JS(b)
}
