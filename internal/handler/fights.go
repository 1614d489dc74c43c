package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sidestake/exchange/internal/domain"
	"github.com/sidestake/exchange/internal/matchmaking"
)

// FightHandler serves the read side of the catalog.
type FightHandler struct {
	engine *matchmaking.Engine
}

// NewFightHandler creates a FightHandler.
func NewFightHandler(engine *matchmaking.Engine) *FightHandler {
	return &FightHandler{engine: engine}
}

// List handles GET /v1/fights.
func (h *FightHandler) List(w http.ResponseWriter, r *http.Request) {
	fights, err := h.engine.ListUpcomingFights(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"fights": fights})
}

// Get handles GET /v1/fights/{fightID}.
func (h *FightHandler) Get(w http.ResponseWriter, r *http.Request) {
	fightID, err := pathInt64(r, "fightID")
	if err != nil {
		RespondError(w, err)
		return
	}
	fight, err := h.engine.GetFight(r.Context(), fightID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, fight)
}

// OpenDeals handles GET /v1/fights/{fightID}/deals. The optional user query
// parameter hides the viewer's own deals.
func (h *FightHandler) OpenDeals(w http.ResponseWriter, r *http.Request) {
	fightID, err := pathInt64(r, "fightID")
	if err != nil {
		RespondError(w, err)
		return
	}
	viewer, _ := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)

	deals, err := h.engine.ListOpenDeals(r.Context(), fightID, viewer)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"deals": deals})
}

func pathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, domain.ErrValidation("invalid " + name)
	}
	return v, nil
}
