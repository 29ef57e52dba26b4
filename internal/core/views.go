package core

import "time"

// CategoryAggregate is the summed amount for one expense category.
type CategoryAggregate struct {
	Category string `json:"category"`
	Total    Money  `json:"total"`
}

// TimeSeriesPoint is one expense plotted on the spending trend chart.
type TimeSeriesPoint struct {
	Label  string    `json:"label"`
	Amount Money     `json:"amount"`
	Date   time.Time `json:"date"`
}

// CategoryBreakdown groups expense transactions by category and sums the
// amounts. Transactions without a category fold into DefaultCategory.
// Output order is first appearance among the input; consumers needing a
// stable visual order sort explicitly. Income transactions are skipped, so
// the returned totals always sum to the projection's TotalExpenses.
func CategoryBreakdown(transactions []Transaction) []CategoryAggregate {
	var out []CategoryAggregate
	index := make(map[string]int)
	for _, t := range transactions {
		if t.Kind != KindExpense {
			continue
		}
		cat := t.Category
		if cat == "" {
			cat = DefaultCategory
		}
		if i, ok := index[cat]; ok {
			out[i].Total.Cents += t.Amount.Cents
			continue
		}
		index[cat] = len(out)
		out = append(out, CategoryAggregate{Category: cat, Total: t.Amount})
	}
	return out
}

// TimeSeries maps each expense transaction to a chart point labelled with
// its category. Income is excluded: this is an expense-trend view only.
func TimeSeries(transactions []Transaction) []TimeSeriesPoint {
	var out []TimeSeriesPoint
	for _, t := range transactions {
		if t.Kind != KindExpense {
			continue
		}
		label := t.Category
		if label == "" {
			label = DefaultCategory
		}
		out = append(out, TimeSeriesPoint{Label: label, Amount: t.Amount, Date: t.Date})
	}
	return out
}
