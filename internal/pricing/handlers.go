package pricing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/noah-isme/yevea-countertop/internal/common"
)

// Input accepts a JSON number or string; an absent or null value stays empty.
type Input string

// UnmarshalJSON implements json.Unmarshaler.
func (in *Input) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*in = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*in = Input(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*in = Input(n.String())
	return nil
}

// Handler exposes the live price preview over HTTP.
type Handler struct {
	Calc *Calculator
}

type quoteRequest struct {
	Length      Input   `json:"length"`
	Width       Input   `json:"width"`
	Thickness   Input   `json:"thickness"`
	LengthDelta float64 `json:"lengthDelta"`
	WidthDelta  float64 `json:"widthDelta"`
}

// Quote handles POST /api/v1/quote. Deltas mirror the ±1/±10 steppers and are
// applied before pricing.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var payload quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	raw := RawDimensions{
		Length:    string(payload.Length),
		Width:     string(payload.Width),
		Thickness: string(payload.Thickness),
	}
	if payload.LengthDelta != 0 {
		raw.Length = stepRaw(raw.Length, payload.LengthDelta, MinLength, MaxLength)
	}
	if payload.WidthDelta != 0 {
		raw.Width = stepRaw(raw.Width, payload.WidthDelta, MinWidth, MaxWidth)
	}

	calc := h.Calc
	if calc == nil {
		calc = NewCalculator(nil)
	}
	q, ok := calc.Quote(raw)
	if !ok {
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": false}})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"ok":         true,
			"price":      q.Price.StringFixed(2),
			"dimensions": q.Dimensions,
		},
	})
}

func stepRaw(value string, delta, lo, hi float64) string {
	v, ok := parseNumber(value)
	if !ok {
		return value
	}
	return strconv.FormatFloat(Step(v, delta, lo, hi), 'f', -1, 64)
}
