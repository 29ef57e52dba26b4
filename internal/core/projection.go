package core

import "sort"

// Projection is the derived aggregate state computed from one budget
// record snapshot. It is published as a whole: consumers never observe a
// partially updated set of fields.
type Projection struct {
	// Exists is false when the owner has no budget record yet.
	Exists bool

	TotalExpenses Money
	TotalIncome   Money

	// Transactions is the union of the snapshot's expense and income
	// events, sorted descending by date (most recent first). Ties keep
	// the concatenation order: expenses before incomes, each in
	// insertion order.
	Transactions []Transaction
}

// BuildProjection derives the aggregate state from the raw event arrays of
// a snapshot. Nil slices are treated as empty; the input is not retained.
func BuildProjection(expenses []ExpenseEvent, incomes []IncomeEvent, exists bool) Projection {
	p := Projection{
		Exists:       exists,
		Transactions: make([]Transaction, 0, len(expenses)+len(incomes)),
	}
	for _, e := range expenses {
		p.TotalExpenses.Cents += e.Amount.Cents
		p.Transactions = append(p.Transactions, Transaction{
			Kind:     KindExpense,
			EventID:  e.ID,
			Amount:   e.Amount,
			Date:     e.Date,
			Category: e.Category,
		})
	}
	for _, i := range incomes {
		p.TotalIncome.Cents += i.Amount.Cents
		p.Transactions = append(p.Transactions, Transaction{
			Kind:    KindIncome,
			EventID: i.ID,
			Amount:  i.Amount,
			Date:    i.Date,
		})
	}
	sort.SliceStable(p.Transactions, func(a, b int) bool {
		return p.Transactions[a].Date.After(p.Transactions[b].Date)
	})
	return p
}

// Balance is total income minus total expenses. No floor at zero.
func (p Projection) Balance() Money {
	return p.TotalIncome.Sub(p.TotalExpenses)
}
