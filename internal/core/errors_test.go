package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"lock timeout", &pgconn.PgError{Code: pgLockNotAvailable}, true},
		{"deadlock victim", &pgconn.PgError{Code: pgDeadlockDetected}, true},
		{"check violation", &pgconn.PgError{Code: pgCheckViolation}, false},
		{"plain error", errors.New("connection refused"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: expected IsRetryable=%v", tc.name, tc.want)
		}
	}

	// Classification must survive wrapping, as translateStockErr wraps.
	wrapped := fmt.Errorf("failed to promote: %w", &pgconn.PgError{Code: pgDeadlockDetected})
	if !IsRetryable(wrapped) {
		t.Error("Expected wrapped deadlock error to stay retryable")
	}
}

func TestTranslateStockErr(t *testing.T) {
	checkErr := translateStockErr(7, &pgconn.PgError{Code: pgCheckViolation, Message: "qty_on_hand >= 0"})
	var invariant *InvariantViolationError
	if !errors.As(checkErr, &invariant) {
		t.Fatalf("Expected InvariantViolationError, got %v", checkErr)
	}
	if invariant.StockLevelID != 7 {
		t.Errorf("Expected stock level 7, got %d", invariant.StockLevelID)
	}

	for _, code := range []string{pgLockNotAvailable, pgDeadlockDetected} {
		translated := translateStockErr(7, &pgconn.PgError{Code: code})
		if !IsRetryable(translated) {
			t.Errorf("Expected code %s translated to a retryable error, got %v", code, translated)
		}
	}

	// Anything else passes through untouched.
	plain := errors.New("broken pipe")
	if translateStockErr(7, plain) != plain {
		t.Error("Expected unrecognized errors passed through unchanged")
	}
}
