package storefront

import (
	"net/url"
	"strings"

	"github.com/noah-isme/yevea-countertop/internal/configurator"
	"github.com/noah-isme/yevea-countertop/internal/pricing"
)

// Form field names of the server submission contract.
const (
	fieldAction     = "action"
	fieldLength     = "length"
	fieldWidth      = "width"
	fieldThickness  = "thickness"
	fieldEdges      = "edges[]"
	fieldEdgesPlain = "edges"
	fieldEdgePrefix = "edge-"
	fieldUsage      = "usage"
	fieldUsageOther = "usage_other"
	fieldItemID     = "item_id"
)

// Actions accepted by Submit.
const (
	ActionAddToCart  = "add_to_cart"
	ActionRemoveItem = "remove_item"
	ActionCheckout   = "checkout"
)

func rawDimensions(values url.Values) pricing.RawDimensions {
	return pricing.RawDimensions{
		Length:    values.Get(fieldLength),
		Width:     values.Get(fieldWidth),
		Thickness: values.Get(fieldThickness),
	}
}

// applyEdges updates state from the submitted edge fields and reports
// whether any were present. "edges[]" tokens name a live side ("north") or
// carry an explicit finish ("north:straight"); their presence resets
// unlisted sides to straight. "edge-<side>" radio fields set one side each.
// Unknown sides and finishes are ignored.
func applyEdges(state *configurator.State, values url.Values) bool {
	tokens := make([]string, 0, len(values[fieldEdges])+len(values[fieldEdgesPlain]))
	tokens = append(tokens, values[fieldEdges]...)
	tokens = append(tokens, values[fieldEdgesPlain]...)
	seen := len(tokens) > 0
	if seen {
		state.Edges = configurator.AllStraight()
	}
	for _, token := range tokens {
		name, finish, hasFinish := strings.Cut(token, ":")
		side, ok := configurator.ParseSide(name)
		if !ok {
			continue
		}
		f := configurator.Live
		if hasFinish {
			if f, ok = configurator.ParseFinish(finish); !ok {
				continue
			}
		}
		state.SetEdge(side, f)
	}
	for _, side := range configurator.Sides {
		v, ok := values[fieldEdgePrefix+string(side)]
		if !ok || len(v) == 0 {
			continue
		}
		seen = true
		if f, ok := configurator.ParseFinish(v[0]); ok {
			state.SetEdge(side, f)
		}
	}
	return seen
}

// applyUsage updates state from the usage fields and reports whether any were present.
func applyUsage(state *configurator.State, values url.Values) bool {
	seen := false
	if v, ok := values[fieldUsage]; ok && len(v) > 0 {
		seen = true
		if c, ok := configurator.ParseCategory(v[0]); ok {
			state.SetCategory(c)
		}
	}
	if v, ok := values[fieldUsageOther]; ok && len(v) > 0 {
		seen = true
		state.SetOtherText(v[0])
	}
	return seen
}
