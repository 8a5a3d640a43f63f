package configurator

import "strings"

const (
	edgesSummaryPrefix = "Edge Configuration"
	usageSummaryPrefix = "Usage"
)

// State is the buyer's current edge and usage selection. Nothing here
// affects pricing.
type State struct {
	Edges Edges `json:"edges"`
	Usage Usage `json:"usage"`

	otherDefault string
}

// NewState returns the initial selection: all sides straight, usage tabletop.
func NewState() State {
	return State{Edges: AllStraight(), Usage: Usage{Category: Tabletop}}
}

// WithOtherDefault sets the placeholder used for a blank Other text.
func (s State) WithOtherDefault(text string) State {
	s.otherDefault = text
	return s
}

// SetEdge sets the finish of one side.
func (s *State) SetEdge(side Side, f Finish) {
	s.Edges = s.Edges.With(side, f)
}

// ToggleEdge flips one side between straight and live.
func (s *State) ToggleEdge(side Side) {
	if s.Edges.Finish(side) == Live {
		s.SetEdge(side, Straight)
		return
	}
	s.SetEdge(side, Live)
}

// SetCategory selects a usage category. The free text survives a switch away
// from Other until it is replaced.
func (s *State) SetCategory(c Category) {
	s.Usage.Category = c
}

// SetOtherText stores the free text for Other.
func (s *State) SetOtherText(text string) {
	s.Usage.OtherText = strings.TrimSpace(text)
}

// OtherTextApplicable reports whether the free-text field should be visible.
func (s State) OtherTextApplicable() bool {
	return s.Usage.Category == Other
}

// UsageText is the usage as rendered in names and summaries.
func (s State) UsageText() string {
	return s.Usage.Text(s.otherDefault)
}

// EdgesSummary renders e.g. "Edge Configuration: back: straight, right: live edge, ...".
func (s State) EdgesSummary() string {
	parts := make([]string, 0, len(Sides))
	for _, side := range Sides {
		parts = append(parts, side.Label()+": "+s.Edges.Finish(side).Label())
	}
	return edgesSummaryPrefix + ": " + strings.Join(parts, ", ")
}

// UsageSummary renders e.g. "Usage: Tabletop".
func (s State) UsageSummary() string {
	return usageSummaryPrefix + ": " + s.UsageText()
}
