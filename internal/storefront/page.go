package storefront

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"sort"
	"strings"

	"github.com/noah-isme/yevea-countertop/internal/cart"
	"github.com/noah-isme/yevea-countertop/internal/configurator"
	"github.com/noah-isme/yevea-countertop/internal/pricing"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html.tmpl"))

type option struct {
	Value    string
	Label    string
	Selected bool
}

type edgeField struct {
	Side  string
	Label string
	Live  bool
}

// pageData is everything the page template renders.
type pageData struct {
	CSRFToken string
	Error     string
	Message   string
	Warning   string

	Length      string
	Width       string
	MinLength   int
	MaxLength   int
	MinWidth    int
	MaxWidth    int
	Thicknesses []option

	Edges            []edgeField
	Categories       []option
	OtherPlaceholder string
	Config           configurator.View

	HasPrice       bool
	Price          string
	CurrencySymbol string
	Schema         template.JS

	Cart            cart.View
	Processing      bool
	ProcessingLabel string
}

func newPageData(raw pricing.RawDimensions, rates pricing.RateTable, state configurator.State) pageData {
	data := pageData{
		Length:    raw.Length,
		Width:     raw.Width,
		MinLength: pricing.MinLength,
		MaxLength: pricing.MaxLength,
		MinWidth:  pricing.MinWidth,
		MaxWidth:  pricing.MaxWidth,
		Config:    configurator.NewView(state),
	}

	thicknesses := make([]int, 0, len(rates))
	for t := range rates {
		thicknesses = append(thicknesses, t)
	}
	sort.Ints(thicknesses)
	selected := strings.TrimSpace(raw.Thickness)
	for _, t := range thicknesses {
		v := pricing.FormatNumber(float64(t))
		data.Thicknesses = append(data.Thicknesses, option{Value: v, Label: v, Selected: v == selected})
	}

	for _, side := range configurator.Sides {
		data.Edges = append(data.Edges, edgeField{
			Side:  string(side),
			Label: side.Label(),
			Live:  state.Edges.Finish(side) == configurator.Live,
		})
	}
	for _, c := range configurator.Categories {
		data.Categories = append(data.Categories, option{Value: string(c), Label: c.Label(), Selected: c == state.Usage.Category})
	}
	return data
}

func render(w http.ResponseWriter, status int, data pageData) error {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
