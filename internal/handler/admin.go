package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sidestake/exchange/internal/domain"
	"github.com/sidestake/exchange/internal/repository"
)

// CatalogSyncer triggers one catalog sync pass on demand.
type CatalogSyncer interface {
	SyncOnce(ctx context.Context) error
}

// AdminHandler serves operator actions: recording results, inspecting fights
// awaiting one, and forcing a catalog sync.
type AdminHandler struct {
	pool   *pgxpool.Pool
	fights repository.FightRepository
	syncer CatalogSyncer
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler. syncer may be nil when the catalog
// source is not configured.
func NewAdminHandler(pool *pgxpool.Pool, fights repository.FightRepository, syncer CatalogSyncer, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{pool: pool, fights: fights, syncer: syncer, logger: logger}
}

type resultRequest struct {
	Winner int `json:"winner"`
}

// RecordResult handles POST /admin/fights/{fightID}/result. Settlement picks
// the fight up on its next tick.
func (h *AdminHandler) RecordResult(w http.ResponseWriter, r *http.Request) {
	fightID, err := pathInt64(r, "fightID")
	if err != nil {
		RespondError(w, err)
		return
	}

	var req resultRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	winner, err := domain.ParseSide(req.Winner)
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	fight, err := h.fights.FindByID(r.Context(), h.pool, fightID)
	if err != nil {
		RespondError(w, domain.ErrInternal("find fight", err))
		return
	}
	if fight == nil {
		RespondError(w, domain.ErrNotFound("fight", fightID))
		return
	}

	if err := h.fights.RecordResult(r.Context(), h.pool, fightID, winner); err != nil {
		RespondError(w, err)
		return
	}

	h.logger.Info("fight result recorded", "fight_id", fightID, "winner", winner)
	RespondJSON(w, http.StatusOK, map[string]any{"fight_id": fightID, "winner": winner})
}

// ForceSync handles POST /admin/sync.
func (h *AdminHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		RespondError(w, domain.ErrConflict("catalog sync is not configured"))
		return
	}
	if err := h.syncer.SyncOnce(r.Context()); err != nil {
		RespondError(w, domain.ErrInternal("catalog sync", err))
		return
	}
	h.logger.Info("catalog sync forced")
	RespondJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

// OverdueFights handles GET /admin/fights/overdue.
func (h *AdminHandler) OverdueFights(w http.ResponseWriter, r *http.Request) {
	fights, err := h.fights.ListOverdue(r.Context(), h.pool, 50)
	if err != nil {
		RespondError(w, domain.ErrInternal("list overdue fights", err))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"fights": fights})
}
