package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

// Amounts in responses are decimal strings ("12.50"); cents never leave
// the server raw.

type transactionResponse struct {
	Kind     string    `json:"kind"`
	EventID  string    `json:"event_id,omitempty"`
	Amount   string    `json:"amount"`
	Date     time.Time `json:"date"`
	Category string    `json:"category,omitempty"`
}

type categoryResponse struct {
	Category string `json:"category"`
	Total    string `json:"total"`
}

type timeSeriesResponse struct {
	Label  string    `json:"label"`
	Amount string    `json:"amount"`
	Date   time.Time `json:"date"`
}

type budgetResponse struct {
	OwnerID           string                `json:"owner_id"`
	Exists            bool                  `json:"exists"`
	TotalExpenses     string                `json:"total_expenses"`
	TotalIncome       string                `json:"total_income"`
	Balance           string                `json:"balance"`
	Transactions      []transactionResponse `json:"transactions"`
	CategoryBreakdown []categoryResponse    `json:"category_breakdown"`
	TimeSeries        []timeSeriesResponse  `json:"time_series"`
}

type eventResponse struct {
	EventID string `json:"event_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func buildBudgetResponse(ownerID string, proj core.Projection) budgetResponse {
	resp := budgetResponse{
		OwnerID:           ownerID,
		Exists:            proj.Exists,
		TotalExpenses:     proj.TotalExpenses.String(),
		TotalIncome:       proj.TotalIncome.String(),
		Balance:           proj.Balance().String(),
		Transactions:      make([]transactionResponse, 0, len(proj.Transactions)),
		CategoryBreakdown: []categoryResponse{},
		TimeSeries:        []timeSeriesResponse{},
	}

	for _, t := range proj.Transactions {
		resp.Transactions = append(resp.Transactions, transactionResponse{
			Kind:     string(t.Kind),
			EventID:  t.EventID,
			Amount:   t.Amount.String(),
			Date:     t.Date,
			Category: t.Category,
		})
	}
	for _, c := range core.CategoryBreakdown(proj.Transactions) {
		resp.CategoryBreakdown = append(resp.CategoryBreakdown, categoryResponse{
			Category: c.Category,
			Total:    c.Total.String(),
		})
	}
	for _, p := range core.TimeSeries(proj.Transactions) {
		resp.TimeSeries = append(resp.TimeSeries, timeSeriesResponse{
			Label:  p.Label,
			Amount: p.Amount.String(),
			Date:   p.Date,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain and store errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequestBody),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrInvalidKind):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadyExists), errors.Is(err, ledger.ErrConflict):
		status = http.StatusConflict
	case ledger.IsTransport(err):
		status = http.StatusBadGateway
	}

	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
