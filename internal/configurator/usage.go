package configurator

import "strings"

// Category is the intended use of the countertop.
type Category string

const (
	Tabletop           Category = "tabletop"
	KitchenCountertop  Category = "kitchen-countertop"
	KitchenIsland      Category = "kitchen-island"
	BathroomCountertop Category = "bathroom-countertop"
	Shelf              Category = "shelf"
	Other              Category = "other"
)

// DefaultOtherText is used when the free text for Other is blank.
const DefaultOtherText = "other solid olive wood countertop"

const defaultSKUPrefix = "36"

// Categories lists the categories in display order.
var Categories = []Category{Tabletop, KitchenCountertop, KitchenIsland, BathroomCountertop, Shelf, Other}

var categoryLabels = map[Category]string{
	Tabletop:           "Tabletop",
	KitchenCountertop:  "Kitchen Countertop",
	KitchenIsland:      "Kitchen Island",
	BathroomCountertop: "Bathroom Countertop",
	Shelf:              "Shelf",
	Other:              "Other",
}

var skuPrefixes = map[Category]string{
	Tabletop:           "31",
	KitchenCountertop:  "32",
	KitchenIsland:      "33",
	BathroomCountertop: "34",
	Shelf:              "35",
	Other:              "36",
}

// ParseCategory resolves a category value.
func ParseCategory(v string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(v)))
	_, ok := categoryLabels[c]
	return c, ok
}

// Label returns the display label, or the raw value for unknown categories.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// SKUPrefix returns the two-digit product family prefix.
func (c Category) SKUPrefix() string {
	if p, ok := skuPrefixes[c]; ok {
		return p
	}
	return defaultSKUPrefix
}

// Usage is the selected category plus the free text that only Other carries.
type Usage struct {
	Category  Category `json:"category"`
	OtherText string   `json:"otherText,omitempty"`
}

// Text returns the usage as shown to the buyer. For Other it is the free
// text or defaultOther when blank; for any other category the free text is ignored.
func (u Usage) Text(defaultOther string) string {
	if u.Category != Other {
		return u.Category.Label()
	}
	if t := strings.TrimSpace(u.OtherText); t != "" {
		return t
	}
	if defaultOther == "" {
		return DefaultOtherText
	}
	return defaultOther
}

// Normalize drops free text from categories that do not carry it.
func (u Usage) Normalize() Usage {
	if u.Category == "" {
		u.Category = Tabletop
	}
	if u.Category != Other {
		u.OtherText = ""
	} else {
		u.OtherText = strings.TrimSpace(u.OtherText)
	}
	return u
}
