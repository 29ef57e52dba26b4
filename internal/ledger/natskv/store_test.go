package natskv

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

func TestIsRevisionConflict(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "wrong last sequence",
			err:      &jetstream.APIError{ErrorCode: jetstream.JSErrCodeStreamWrongLastSequence},
			expected: true,
		},
		{
			name:     "wrapped wrong last sequence",
			err:      fmt.Errorf("update: %w", &jetstream.APIError{ErrorCode: jetstream.JSErrCodeStreamWrongLastSequence}),
			expected: true,
		},
		{
			name:     "key exists",
			err:      jetstream.ErrKeyExists,
			expected: true,
		},
		{
			name:     "other api error",
			err:      &jetstream.APIError{ErrorCode: jetstream.JSErrCodeStreamNotFound},
			expected: false,
		},
		{
			name:     "plain error",
			err:      errors.New("connection lost"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRevisionConflict(tt.err); got != tt.expected {
				t.Errorf("isRevisionConflict(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestWatchBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{40, 30 * time.Second}, // shift overflow still caps
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := watchBackoff(tt.attempt); got != tt.expected {
				t.Errorf("watchBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}
