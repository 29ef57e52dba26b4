package core

import (
	"errors"
	"strings"
	"time"
)

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// DefaultCategory is where expenses without a category are folded.
const DefaultCategory = "Other"

type (
	// Kind discriminates the two transaction types.
	Kind string

	Money struct {
		Cents int64
	}

	// ExpenseEvent is a single recorded expense. Immutable once written.
	// ID is assigned at write time; records written by older clients may
	// carry an empty ID, in which case deletion falls back to the
	// (Date, Amount, Category) tuple.
	ExpenseEvent struct {
		ID        string    `json:"id,omitempty"`
		Category  string    `json:"category"`
		Amount    Money     `json:"amount"`
		Date      time.Time `json:"date"`
		CreatedAt time.Time `json:"created_at"`
	}

	// IncomeEvent is a single recorded income. Deletion identity is the
	// ID when present, else the (Date, Amount) tuple.
	IncomeEvent struct {
		ID     string    `json:"id,omitempty"`
		Amount Money     `json:"amount"`
		Date   time.Time `json:"date"`
	}

	// Transaction is the unified in-memory view of one event. It is built
	// fresh on every snapshot and never persisted; Category is empty for
	// income transactions.
	Transaction struct {
		Kind     Kind      `json:"kind"`
		EventID  string    `json:"event_id,omitempty"`
		Amount   Money     `json:"amount"`
		Date     time.Time `json:"date"`
		Category string    `json:"category,omitempty"`
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrEmptyCategory = errors.New("empty category")
	ErrInvalidKind   = errors.New("invalid transaction kind")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e ExpenseEvent) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (e IncomeEvent) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	return e.Amount.Validate()
}

func (t Transaction) Validate() error {
	switch t.Kind {
	case KindExpense, KindIncome:
	default:
		return ErrInvalidKind
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	return t.Amount.Validate()
}

// MatchesExpense reports whether the transaction identifies the given
// expense event for deletion. ID matching wins when both sides carry one;
// the tuple fallback matches every duplicate sharing (date, amount,
// category).
func (t Transaction) MatchesExpense(e ExpenseEvent) bool {
	if t.Kind != KindExpense {
		return false
	}
	if t.EventID != "" && e.ID != "" {
		return t.EventID == e.ID
	}
	return t.Date.Equal(e.Date) && t.Amount == e.Amount && t.Category == e.Category
}

// MatchesIncome reports whether the transaction identifies the given
// income event for deletion.
func (t Transaction) MatchesIncome(e IncomeEvent) bool {
	if t.Kind != KindIncome {
		return false
	}
	if t.EventID != "" && e.ID != "" {
		return t.EventID == e.ID
	}
	return t.Date.Equal(e.Date) && t.Amount == e.Amount
}
