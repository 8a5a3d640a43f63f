package configurator

import (
	"net/http"

	"github.com/noah-isme/yevea-countertop/internal/common"
)

// Handler exposes the session's configuration state over HTTP.
type Handler struct {
	Repo *Repository
}

// View is the JSON projection of a State.
type View struct {
	Edges               Edges  `json:"edges"`
	EdgeCode            string `json:"edgeCode"`
	EdgesDescription    string `json:"edgesDescription"`
	EdgesSummary        string `json:"edgesSummary"`
	Usage               Usage  `json:"usage"`
	UsageText           string `json:"usageText"`
	UsageSummary        string `json:"usageSummary"`
	OtherTextApplicable bool   `json:"otherTextApplicable"`
}

// NewView projects s for rendering.
func NewView(s State) View {
	return View{
		Edges:               s.Edges,
		EdgeCode:            s.Edges.Code(),
		EdgesDescription:    s.Edges.Description(),
		EdgesSummary:        s.EdgesSummary(),
		Usage:               s.Usage,
		UsageText:           s.UsageText(),
		UsageSummary:        s.UsageSummary(),
		OtherTextApplicable: s.OtherTextApplicable(),
	}
}

type updateRequest struct {
	Side      string  `json:"side" validate:"omitempty,oneof=north east south west"`
	Finish    string  `json:"finish" validate:"omitempty,oneof=straight live"`
	Toggle    bool    `json:"toggle"`
	Category  string  `json:"category" validate:"omitempty,oneof=tabletop kitchen-countertop kitchen-island bathroom-countertop shelf other"`
	OtherText *string `json:"otherText" validate:"omitempty,max=200"`
}

// Get handles GET /api/v1/configuration.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "NO_SESSION", "session required", nil)
		return
	}
	state, err := h.Repo.Load(r.Context(), sessionID)
	writeState(w, state, err)
}

// Update handles PATCH /api/v1/configuration. Each request carries one UI event.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "NO_SESSION", "session required", nil)
		return
	}
	var payload updateRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if payload.Side == "" && (payload.Finish != "" || payload.Toggle) {
		common.WriteError(w, common.NewAppError(common.KindValidation, common.MsgInvalidPayload, nil))
		return
	}
	state, err := h.Repo.Update(r.Context(), sessionID, func(s *State) {
		if side, ok := ParseSide(payload.Side); ok {
			if payload.Toggle {
				s.ToggleEdge(side)
			} else if f, ok := ParseFinish(payload.Finish); ok {
				s.SetEdge(side, f)
			}
		}
		if c, ok := ParseCategory(payload.Category); ok {
			s.SetCategory(c)
		}
		if payload.OtherText != nil {
			s.SetOtherText(*payload.OtherText)
		}
	})
	writeState(w, state, err)
}

func writeState(w http.ResponseWriter, state State, err error) {
	body := map[string]any{"data": NewView(state)}
	if err != nil {
		if !common.IsKind(err, common.KindPersistence) {
			common.WriteError(w, err)
			return
		}
		body["warning"] = common.MsgPersistence
	}
	common.JSON(w, http.StatusOK, body)
}
