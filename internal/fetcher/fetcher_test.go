package fetcher

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"hlfeeder/internal/ingesterr"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestBackoffForNeverExceedsCeiling(t *testing.T) {
	t.Parallel()

	// With the cold base at the one-hour ceiling, every error count lands
	// on the cap; the shift only matters for smaller bases.
	for _, errorCount := range []int{0, 1, 2, 6, 10} {
		if got := backoffFor(errorCount); got != time.Hour {
			t.Fatalf("backoffFor(%d)=%s want %s", errorCount, got, time.Hour)
		}
	}
}

func TestClassifyInsertErr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want func(error) bool
	}{
		{
			name: "missing partition",
			err:  &pgconn.PgError{Code: "23514", Message: `no partition of relation "hl_fills_raw" found for row`},
			want: func(err error) bool {
				var e *ingesterr.PartitionMissingError
				return errors.As(err, &e)
			},
		},
		{
			name: "check violation",
			err:  &pgconn.PgError{Code: "23514", Message: `new row for relation "hl_fills_raw" violates check constraint`},
			want: func(err error) bool {
				var e *ingesterr.ConstraintViolationError
				return errors.As(err, &e)
			},
		},
		{
			name: "foreign key violation",
			err:  &pgconn.PgError{Code: "23503", Message: "insert or update violates foreign key constraint"},
			want: func(err error) bool {
				var e *ingesterr.ConstraintViolationError
				return errors.As(err, &e)
			},
		},
		{
			name: "connection loss",
			err:  fmt.Errorf("conn closed"),
			want: func(err error) bool {
				var e *ingesterr.DatabaseTransientError
				return errors.As(err, &e)
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := classifyInsertErr(tc.err)
			if !tc.want(got) {
				t.Fatalf("classifyInsertErr(%v) classified as %T", tc.err, got)
			}
		})
	}
}
