package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/trogers1052/quant-data-service/internal/models"
	"github.com/trogers1052/quant-data-service/internal/service"
)

type priceRangeResponse struct {
	Ticker string             `json:"ticker"`
	Start  string             `json:"start"`
	End    string             `json:"end"`
	Source string             `json:"source"`
	Count  int                `json:"count"`
	Bars   []*models.PriceBar `json:"bars"`
}

// GetAllStocks handles GET /stocks?country=US&active=true
func (h *Handler) GetAllStocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	activeOnly, _ := strconv.ParseBool(q.Get("active"))

	stocks, err := h.stocks.List(r.Context(), q.Get("country"), activeOnly)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stocks)
}

// GetStock handles GET /stocks/{ticker}
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	stock, err := h.stocks.Get(r.Context(), mux.Vars(r)["ticker"])
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stock)
}

// AddStock handles POST /stocks
func (h *Handler) AddStock(w http.ResponseWriter, r *http.Request) {
	var req models.StockCreate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stock, err := h.stocks.Create(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, stock)
}

// UpdateStock handles PATCH /stocks/{ticker}
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	var req models.StockUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stock, err := h.stocks.Update(r.Context(), mux.Vars(r)["ticker"], req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stock)
}

// RemoveStock handles DELETE /stocks/{ticker}
func (h *Handler) RemoveStock(w http.ResponseWriter, r *http.Request) {
	if err := h.stocks.Delete(r.Context(), mux.Vars(r)["ticker"]); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetPrices handles GET /stocks/{ticker}/prices?start=&end=&period=&refresh=
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	start, end, refresh, err := h.rangeParams(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	result, err := h.prices.GetRange(r.Context(), mux.Vars(r)["ticker"], start, end, refresh)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, priceRangeResponse{
		Ticker: result.Stock.Ticker,
		Start:  result.Start.Format(models.DateLayout),
		End:    result.End.Format(models.DateLayout),
		Source: result.Source,
		Count:  len(result.Bars),
		Bars:   result.Bars,
	})
}

// GetChart handles GET /stocks/{ticker}/chart with the same parameters as GetPrices
func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	start, end, refresh, err := h.rangeParams(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	chart, err := h.prices.Chart(r.Context(), mux.Vars(r)["ticker"], start, end, refresh)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, chart)
}

// RefreshPrices handles POST /stocks/{ticker}/prices/refresh
func (h *Handler) RefreshPrices(w http.ResponseWriter, r *http.Request) {
	result, err := h.prices.RefreshTicker(r.Context(), mux.Vars(r)["ticker"])
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// PurgePrices handles DELETE /stocks/{ticker}/prices
func (h *Handler) PurgePrices(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.prices.Purge(r.Context(), mux.Vars(r)["ticker"])
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *Handler) rangeParams(r *http.Request) (start, end time.Time, refresh bool, err error) {
	q := r.URL.Query()
	start, end, err = service.ResolveRange(q.Get("period"), q.Get("start"), q.Get("end"), h.now())
	if err != nil {
		return
	}
	if v := q.Get("refresh"); v != "" {
		refresh, err = strconv.ParseBool(v)
		if err != nil {
			err = fmt.Errorf("%w: refresh must be a boolean", service.ErrValidation)
		}
	}
	return
}
