package pricing

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/yevea-countertop/internal/common"
)

// Dimension bounds in centimetres.
const (
	MinLength = 50
	MaxLength = 300
	MinWidth  = 20
	MaxWidth  = 100

	DefaultLength    = 80
	DefaultWidth     = 30
	DefaultThickness = 3

	// FallbackThickness is the thickness whose rate applies to unknown thickness values.
	FallbackThickness = 3
)

// Thicknesses lists the thickness options offered to buyers.
var Thicknesses = []int{3, 5, 7}

var fallbackRate = decimal.NewFromInt(900)

// RateTable maps thickness in centimetres to a price per square metre.
type RateTable map[int]decimal.Decimal

// DefaultRates returns the stock rate table.
func DefaultRates() RateTable {
	return RateTable{
		3: decimal.NewFromInt(900),
		5: decimal.NewFromInt(1200),
		7: decimal.NewFromInt(1500),
	}
}

// Rate returns the per-m² rate for thickness, falling back to the 3 cm rate.
func (t RateTable) Rate(thickness float64) decimal.Decimal {
	if thickness == math.Trunc(thickness) {
		if r, ok := t[int(thickness)]; ok {
			return r
		}
	}
	if r, ok := t[FallbackThickness]; ok {
		return r
	}
	return fallbackRate
}

// Dimensions describes a countertop in centimetres.
type Dimensions struct {
	Length    float64 `json:"length"`
	Width     float64 `json:"width"`
	Thickness float64 `json:"thickness"`
}

// DefaultDimensions returns the configuration shown before any input.
func DefaultDimensions() Dimensions {
	return Dimensions{Length: DefaultLength, Width: DefaultWidth, Thickness: DefaultThickness}
}

// Clamp pulls length and width into their allowed ranges. Thickness is left as is.
func (d Dimensions) Clamp() Dimensions {
	d.Length = clamp(d.Length, MinLength, MaxLength)
	d.Width = clamp(d.Width, MinWidth, MaxWidth)
	return d
}

// RawDimensions carries unparsed dimension inputs as submitted.
type RawDimensions struct {
	Length    string
	Width     string
	Thickness string
}

// Quote is a displayable price preview.
type Quote struct {
	Dimensions Dimensions      `json:"dimensions"`
	Price      decimal.Decimal `json:"price"`
}

// MetadataSink receives the latest computed price, e.g. a structured-data offer block.
type MetadataSink interface {
	SetOfferPrice(price decimal.Decimal)
}

// Calculator prices countertops from an injected rate table.
type Calculator struct {
	Rates RateTable
	Sink  MetadataSink
}

// NewCalculator constructs a calculator. A nil table uses DefaultRates.
func NewCalculator(rates RateTable) *Calculator {
	if len(rates) == 0 {
		rates = DefaultRates()
	}
	return &Calculator{Rates: rates}
}

func (c *Calculator) rates() RateTable {
	if c == nil || len(c.Rates) == 0 {
		return DefaultRates()
	}
	return c.Rates
}

// Price returns round(length/100 * width/100 * rate, 2) for the clamped dimensions.
func (c *Calculator) Price(d Dimensions) decimal.Decimal {
	d = d.Clamp()
	area := decimal.NewFromFloat(d.Length).Mul(decimal.NewFromFloat(d.Width))
	return area.Mul(c.rates().Rate(d.Thickness)).Div(decimal.NewFromInt(10000)).Round(2)
}

// Quote parses raw inputs and prices them. ok is false when any input is
// missing or non-numeric; no price is displayable in that case.
func (c *Calculator) Quote(raw RawDimensions) (Quote, bool) {
	length, okL := parseNumber(raw.Length)
	width, okW := parseNumber(raw.Width)
	thickness, okT := parseNumber(raw.Thickness)
	if !okL || !okW || !okT {
		return Quote{}, false
	}
	d := Dimensions{Length: length, Width: width, Thickness: thickness}.Clamp()
	q := Quote{Dimensions: d, Price: c.Price(d)}
	if c != nil && c.Sink != nil {
		c.Sink.SetOfferPrice(q.Price)
	}
	return q, true
}

// Validate checks server-submitted dimensions. Missing, non-numeric or
// non-positive values yield a validation error; valid values are clamped.
func Validate(raw RawDimensions) (Dimensions, error) {
	fields := []struct {
		name  string
		value string
	}{
		{"length", raw.Length},
		{"width", raw.Width},
		{"thickness", raw.Thickness},
	}
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, ok := parseNumber(f.value)
		if !ok {
			return Dimensions{}, common.ValidationError(errors.New(f.name + ": not a number"))
		}
		if v <= 0 {
			return Dimensions{}, common.ValidationError(errors.New(f.name + ": must be positive"))
		}
		values[i] = v
	}
	return Dimensions{Length: values[0], Width: values[1], Thickness: values[2]}.Clamp(), nil
}

// Step applies a stepper delta and clamps the result into [lo, hi].
func Step(value, delta, lo, hi float64) float64 {
	return clamp(value+delta, lo, hi)
}

// MinorUnits converts an amount to integer minor units (cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// CurrencySymbol returns the display symbol of an ISO currency code, or the
// upper-cased code when there is none.
func CurrencySymbol(code string) string {
	switch strings.ToLower(code) {
	case "eur", "":
		return "€"
	case "usd":
		return "$"
	case "gbp":
		return "£"
	default:
		return strings.ToUpper(code)
	}
}

// FormatNumber prints v without trailing zeros, e.g. 80 or 82.5.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
