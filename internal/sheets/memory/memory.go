// Package memory is an in-process mirror writer used by tests and the
// memory backend.
package memory

import (
	"context"
	"fmt"
	"sync"

	"bilancio/internal/sheets"
)

type Writer struct {
	mu   sync.Mutex
	rows []sheets.Row
}

var _ sheets.MirrorWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{}
}

// AppendRow stores the row and returns a synthetic reference.
func (w *Writer) AppendRow(_ context.Context, row sheets.Row) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, row)
	return fmt.Sprintf("mem:%d", len(w.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (w *Writer) Rows() []sheets.Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]sheets.Row(nil), w.rows...)
}
