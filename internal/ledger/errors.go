package ledger

import (
	"errors"
	"fmt"
)

// Common store errors.
var (
	// ErrNotFound is returned when the owner has no budget record.
	ErrNotFound = errors.New("budget record not found")

	// ErrAlreadyExists is returned by Create when a record for the owner
	// is already present (a create raced with a prior create).
	ErrAlreadyExists = errors.New("budget record already exists")

	// ErrConflict is returned by conditional writes when the record was
	// modified since the revision was read.
	ErrConflict = errors.New("budget record revision conflict")
)

// TransportError wraps a network or store-availability failure. Callers
// treat it as fatal for the operation; the in-memory projection is never
// cleared because of one.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ledger transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transport wraps err as a TransportError unless it is already one of the
// store sentinels above.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrConflict) {
		return err
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
