// Package sheets defines the outbound port for mirroring ledger
// mutations to a spreadsheet.
package sheets

import "context"

// Row is one mirrored mutation, already formatted for spreadsheet cells.
type Row struct {
	Date     string
	OwnerID  string
	Op       string
	Kind     string
	Category string
	Amount   string
	EventID  string
}

// MirrorWriter appends mutation rows to the mirror destination.
type MirrorWriter interface {
	AppendRow(ctx context.Context, row Row) (ref string, err error)
}
