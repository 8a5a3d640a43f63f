package checkout

import (
	"net/http"

	"github.com/noah-isme/yevea-countertop/internal/cart"
	"github.com/noah-isme/yevea-countertop/internal/common"
)

// Handler exposes the interactive checkout endpoints.
type Handler struct {
	Orchestrator *Orchestrator
	Carts        *cart.Store
}

// Checkout handles POST /api/v1/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Orchestrator == nil || h.Carts == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout not configured", nil)
		return
	}
	sessionID, ok := common.SessionID(r.Context())
	if !ok || sessionID == "" {
		common.JSONError(w, http.StatusUnauthorized, "NO_SESSION", "session required", nil)
		return
	}
	// An unreadable cart loads as empty and is rejected as such.
	c, _ := h.Carts.Load(r.Context(), sessionID)
	redirect, err := h.Orchestrator.Checkout(r.Context(), sessionID, c)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": redirect})
}

// Status handles GET /api/v1/checkout.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Orchestrator == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout not configured", nil)
		return
	}
	sessionID, ok := common.SessionID(r.Context())
	if !ok || sessionID == "" {
		common.JSONError(w, http.StatusUnauthorized, "NO_SESSION", "session required", nil)
		return
	}
	data := map[string]any{"state": h.Orchestrator.State(sessionID).String()}
	if label := h.Orchestrator.Label(sessionID); label != "" {
		data["label"] = label
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": data})
}
