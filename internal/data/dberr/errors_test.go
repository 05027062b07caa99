package dberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"pg 23505", fmt.Errorf("create: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pg fk", &pgconn.PgError{Code: "23503"}, false},
		{"gorm duplicated", gorm.ErrDuplicatedKey, true},
		{"sqlite", errors.New("UNIQUE constraint failed: subscribers.connection_id"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err); got != tc.want {
				t.Fatalf("IsUniqueViolation: want=%v got=%v", tc.want, got)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&pgconn.PgError{Code: "40P01"}) {
		t.Fatalf("deadlock should be retryable")
	}
	if !IsRetryable(errors.New("database is locked")) {
		t.Fatalf("sqlite busy should be retryable")
	}
	if IsRetryable(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation should not be retryable")
	}
}
