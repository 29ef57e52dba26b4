package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bilancio/internal/core"
)

// maxBodySize caps mutation request bodies at 64 KiB.
const maxBodySize = 64 << 10

var errBadRequestBody = errors.New("invalid request body")

// mutationRequest is the JSON body for recording an expense or income.
// Amount is a decimal string; Date accepts "2006-01-02" or RFC 3339.
type mutationRequest struct {
	Amount   string `json:"amount"`
	Category string `json:"category"`
	Date     string `json:"date"`
}

// deleteRequest identifies the transaction to remove. EventID wins when
// set; otherwise the (date, amount, category) tuple is used.
type deleteRequest struct {
	Kind     string `json:"kind"`
	EventID  string `json:"event_id"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
	Date     string `json:"date"`
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequestBody, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequestBody, err)
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, core.ErrInvalidDate
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, core.ErrInvalidDate
}

func parseAmount(s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

func parseExpenseRequest(r *http.Request) (core.ExpenseEvent, error) {
	var req mutationRequest
	if err := decodeJSON(r, &req); err != nil {
		return core.ExpenseEvent{}, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.ExpenseEvent{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.ExpenseEvent{}, err
	}
	return core.ExpenseEvent{
		Category: strings.TrimSpace(req.Category),
		Amount:   amount,
		Date:     date,
	}, nil
}

func parseIncomeRequest(r *http.Request) (core.IncomeEvent, error) {
	var req mutationRequest
	if err := decodeJSON(r, &req); err != nil {
		return core.IncomeEvent{}, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.IncomeEvent{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.IncomeEvent{}, err
	}
	return core.IncomeEvent{Amount: amount, Date: date}, nil
}

func parseDeleteRequest(r *http.Request) (core.Transaction, error) {
	var req deleteRequest
	if err := decodeJSON(r, &req); err != nil {
		return core.Transaction{}, err
	}
	kind := core.Kind(strings.TrimSpace(req.Kind))
	if kind != core.KindExpense && kind != core.KindIncome {
		return core.Transaction{}, core.ErrInvalidKind
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Kind:     kind,
		EventID:  strings.TrimSpace(req.EventID),
		Amount:   amount,
		Date:     date,
		Category: strings.TrimSpace(req.Category),
	}, nil
}
