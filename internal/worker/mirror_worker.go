// Package worker consumes committed ledger mutations from AMQP and
// mirrors them to a spreadsheet.
package worker

import (
	"context"
	"fmt"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/sheets"
)

// MirrorWorker appends one spreadsheet row per mutation message.
type MirrorWorker struct {
	writer sheets.MirrorWriter
	logger *applog.Logger
}

func NewMirrorWorker(writer sheets.MirrorWriter, logger *applog.Logger) *MirrorWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &MirrorWorker{
		writer: writer,
		logger: logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleMutation processes a single mutation message. A returned error
// requeues the delivery.
func (w *MirrorWorker) HandleMutation(ctx context.Context, msg *amqp.MutationMessage) error {
	if msg.OwnerID == "" {
		return fmt.Errorf("mutation message without owner")
	}

	row := sheets.Row{
		Date:     msg.Date.Format("2006-01-02"),
		OwnerID:  msg.OwnerID,
		Op:       msg.Op,
		Kind:     msg.Kind,
		Category: msg.Category,
		Amount:   core.Money{Cents: msg.AmountCents}.String(),
		EventID:  msg.EventID,
	}

	ref, err := w.writer.AppendRow(ctx, row)
	if err != nil {
		return fmt.Errorf("append mirror row: %w", err)
	}

	w.logger.InfoContext(ctx, "Mirrored mutation",
		applog.FieldOwnerID, msg.OwnerID,
		"op", msg.Op,
		applog.FieldKind, msg.Kind,
		applog.FieldSheetsRange, ref)

	return nil
}
