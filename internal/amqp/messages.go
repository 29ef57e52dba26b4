package amqp

import "time"

// Mutation operation names carried on the wire.
const (
	OpRecord = "record"
	OpRemove = "remove"
)

// MutationMessage describes a committed ledger mutation for downstream
// consumers such as the sheets mirror worker.
type MutationMessage struct {
	OwnerID     string    `json:"owner_id"`
	Op          string    `json:"op"`
	Kind        string    `json:"kind"`
	EventID     string    `json:"event_id,omitempty"`
	Category    string    `json:"category,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Date        time.Time `json:"date"`
	Timestamp   time.Time `json:"timestamp"`
}
