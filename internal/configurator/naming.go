package configurator

import (
	"github.com/noah-isme/yevea-countertop/internal/pricing"
)

// Namer derives product names. OtherDefault overrides DefaultOtherText.
type Namer struct {
	OtherDefault string
}

// Name renders "<sku>-<code>. <usage> <L>x<W>x<T> cm, <edge description>",
// e.g. "31-iiii. Tabletop 80x30x3 cm, all straight edges".
func (n Namer) Name(d pricing.Dimensions, edges Edges, usage Usage) string {
	return usage.Category.SKUPrefix() + "-" + edges.Code() + ". " +
		usage.Text(n.OtherDefault) + " " +
		pricing.FormatNumber(d.Length) + "x" + pricing.FormatNumber(d.Width) + "x" + pricing.FormatNumber(d.Thickness) +
		" cm, " + edges.Description()
}

// ProductName is Name with the stock placeholder text.
func ProductName(d pricing.Dimensions, edges Edges, usage Usage) string {
	return Namer{}.Name(d, edges, usage)
}
