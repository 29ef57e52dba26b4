package core

import (
	"testing"
	"time"
)

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
	if err := (Money{Cents: -50}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
}

func TestExpenseEventValidate(t *testing.T) {
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	good := ExpenseEvent{Category: "Food", Amount: Money{Cents: 1250}, Date: date}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []ExpenseEvent{
		{Category: "Food", Amount: Money{Cents: 1250}},               // zero date
		{Category: "Food", Amount: Money{Cents: 0}, Date: date},      // zero amount
		{Category: "", Amount: Money{Cents: 100}, Date: date},        // empty category
		{Category: "   ", Amount: Money{Cents: 100}, Date: date},     // blank category
		{Category: "Food", Amount: Money{Cents: -100}, Date: date},   // negative
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestIncomeEventValidate(t *testing.T) {
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := (IncomeEvent{Amount: Money{Cents: 500}, Date: date}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (IncomeEvent{Amount: Money{Cents: 500}}).Validate(); err == nil {
		t.Fatalf("expected error for zero date")
	}
	if err := (IncomeEvent{Amount: Money{Cents: 0}, Date: date}).Validate(); err == nil {
		t.Fatalf("expected error for zero amount")
	}
}

func TestTransactionMatching(t *testing.T) {
	date := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	exp := ExpenseEvent{ID: "ev-1", Category: "Food", Amount: Money{Cents: 1250}, Date: date}

	cases := []struct {
		name string
		tx   Transaction
		want bool
	}{
		{"id match", Transaction{Kind: KindExpense, EventID: "ev-1", Amount: Money{Cents: 1}, Date: time.Time{}}, true},
		{"id mismatch beats tuple match", Transaction{Kind: KindExpense, EventID: "ev-2", Amount: Money{Cents: 1250}, Date: date, Category: "Food"}, false},
		{"tuple match without ids", Transaction{Kind: KindExpense, Amount: Money{Cents: 1250}, Date: date, Category: "Food"}, true},
		{"tuple amount mismatch", Transaction{Kind: KindExpense, Amount: Money{Cents: 1251}, Date: date, Category: "Food"}, false},
		{"tuple category mismatch", Transaction{Kind: KindExpense, Amount: Money{Cents: 1250}, Date: date, Category: "Rent"}, false},
		{"wrong kind", Transaction{Kind: KindIncome, EventID: "ev-1"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.tx.MatchesExpense(exp); got != tc.want {
				t.Fatalf("MatchesExpense = %v, want %v", got, tc.want)
			}
		})
	}

	inc := IncomeEvent{ID: "", Amount: Money{Cents: 50000}, Date: date}
	tx := Transaction{Kind: KindIncome, Amount: Money{Cents: 50000}, Date: date}
	if !tx.MatchesIncome(inc) {
		t.Fatalf("expected income tuple match")
	}
	// Legacy event without an ID still matches a transaction carrying one.
	tx.EventID = "ev-9"
	if !tx.MatchesIncome(inc) {
		t.Fatalf("expected tuple fallback when event has no ID")
	}
}
