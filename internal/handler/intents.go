package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sidestake/exchange/internal/domain"
	"github.com/sidestake/exchange/internal/infra"
	"github.com/sidestake/exchange/internal/matchmaking"
)

// InvoiceWatcher runs the bounded fast-path poll for a fresh invoice.
type InvoiceWatcher interface {
	WatchInvoice(ctx context.Context, invoiceID int64)
}

// IntentHandler serves intent creation, intent status, and deal listings for
// the chat frontend. Amounts cross the API as decimal strings.
type IntentHandler struct {
	engine  *matchmaking.Engine
	watcher InvoiceWatcher
}

// NewIntentHandler creates an IntentHandler.
func NewIntentHandler(engine *matchmaking.Engine, watcher InvoiceWatcher) *IntentHandler {
	return &IntentHandler{engine: engine, watcher: watcher}
}

type newIntentRequest struct {
	UserID   int64   `json:"user_id"`
	Username *string `json:"username,omitempty"`
	FightID  int64   `json:"fight_id"`
	Side     int     `json:"side"`
	Amount   string  `json:"amount"`
}

// CreateNew handles POST /v1/intents.
func (h *IntentHandler) CreateNew(w http.ResponseWriter, r *http.Request) {
	var req newIntentRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if req.UserID <= 0 {
		RespondError(w, domain.ErrValidation("user_id is required"))
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}
	amountCents, err := infra.DecimalToCents(req.Amount)
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	ticket, err := h.engine.CreateNewIntent(r.Context(), req.UserID, req.Username, req.FightID, side, amountCents)
	if err != nil {
		RespondError(w, err)
		return
	}

	go h.watcher.WatchInvoice(context.WithoutCancel(r.Context()), ticket.InvoiceID)
	RespondJSON(w, http.StatusCreated, ticket)
}

type acceptRequest struct {
	UserID   int64   `json:"user_id"`
	Username *string `json:"username,omitempty"`
}

// Accept handles POST /v1/deals/{dealID}/accept.
func (h *IntentHandler) Accept(w http.ResponseWriter, r *http.Request) {
	dealID, err := pathInt64(r, "dealID")
	if err != nil {
		RespondError(w, err)
		return
	}

	var req acceptRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if req.UserID <= 0 {
		RespondError(w, domain.ErrValidation("user_id is required"))
		return
	}

	ticket, err := h.engine.CreateMatchIntent(r.Context(), req.UserID, req.Username, dealID)
	if err != nil {
		RespondError(w, err)
		return
	}

	go h.watcher.WatchInvoice(context.WithoutCancel(r.Context()), ticket.InvoiceID)
	RespondJSON(w, http.StatusCreated, ticket)
}

// Status handles GET /v1/intents/{invoiceID}.
func (h *IntentHandler) Status(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := pathInt64(r, "invoiceID")
	if err != nil {
		RespondError(w, err)
		return
	}
	state, err := h.engine.IntentStatus(r.Context(), invoiceID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": string(state)})
}

// MyDeals handles GET /v1/deals/mine.
func (h *IntentHandler) MyDeals(w http.ResponseWriter, r *http.Request) {
	viewer, err := queryUser(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	deals, err := h.engine.ListUserDeals(r.Context(), viewer, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"deals": deals})
}

// Shareable handles GET /v1/deals/shareable.
func (h *IntentHandler) Shareable(w http.ResponseWriter, r *http.Request) {
	viewer, err := queryUser(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	deals, err := h.engine.ListShareableDeals(r.Context(), viewer)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"deals": deals})
}

func queryUser(r *http.Request) (int64, error) {
	v, err := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
	if err != nil || v <= 0 {
		return 0, domain.ErrValidation("user query parameter is required")
	}
	return v, nil
}
