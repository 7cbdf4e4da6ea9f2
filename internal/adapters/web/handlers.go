package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"fulfillment-engine/internal/app"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the engine's query/admin contract over HTTP. Lifecycle
// events arrive through the worker, not here.
type Handler struct {
	svc app.ApplicationService
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService) http.Handler {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)

	r.Get("/api/health", h.health)

	r.Route("/api/companies/{companyID}", func(r chi.Router) {
		r.Get("/availability", h.availability)
		r.Get("/items/{itemID}/summary", h.stockSummary)
		r.Get("/stock", h.stockLevels)
		r.Get("/warehouses", h.warehouses)
		r.Post("/stock/receive", h.receiveStock)
		r.Post("/picking/plan", h.planPicking)
	})

	r.Post("/api/admin/reservations/cleanup", h.cleanupReservations)

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// companyID extracts and validates the {companyID} URL parameter.
func companyID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "companyID"))
	if err != nil || id <= 0 {
		writeError(w, r, "invalid company id", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(w, r)
	if !ok {
		return
	}
	itemID := r.URL.Query().Get("item")
	warehouseID, err := strconv.Atoi(r.URL.Query().Get("warehouse"))
	if itemID == "" || err != nil {
		writeError(w, r, "item and warehouse query parameters are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.CheckAvailability(r.Context(), company, itemID, warehouseID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) stockSummary(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(w, r)
	if !ok {
		return
	}
	summary, err := h.svc.GetStockSummary(r.Context(), chi.URLParam(r, "itemID"), company)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

func (h *Handler) stockLevels(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetStockLevels(r.Context(), company)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) warehouses(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ListWarehouses(r.Context(), company)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) receiveStock(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(w, r)
	if !ok {
		return
	}
	var req app.ReceiveStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CompanyID = company
	if req.ItemID == "" || req.LocationID <= 0 || req.Quantity <= 0 {
		writeError(w, r, "item_id, location_id and a positive quantity are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.svc.ReceiveStock(r.Context(), req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "received"})
}

func (h *Handler) planPicking(w http.ResponseWriter, r *http.Request) {
	company, ok := companyID(w, r)
	if !ok {
		return
	}
	var req app.PlanPickingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CompanyID = company
	if req.OrderID == "" || req.WarehouseID <= 0 || len(req.Items) == 0 {
		writeError(w, r, "order_id, warehouse_id and items are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	plan, err := h.svc.PlanPicking(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, plan)
}

func (h *Handler) cleanupReservations(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.CleanupExpiredReservations(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"released": count})
}
