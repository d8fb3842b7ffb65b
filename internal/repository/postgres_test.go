package repository

import (
	"context"
	"testing"
	"time"
)

func TestPartitionName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		start string
		want  string
	}{
		{"2026-01-01", "hl_fills_raw_2026_01"},
		{"2026-12-01", "hl_fills_raw_2026_12"},
	}

	for _, tc := range cases {
		start, err := time.Parse("2006-01-02", tc.start)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.start, err)
		}
		if got := partitionName(start); got != tc.want {
			t.Fatalf("partitionName(%s)=%q want %q", tc.start, got, tc.want)
		}
	}
}

func TestCreateFillsPartitionRejectsBadMonth(t *testing.T) {
	t.Parallel()

	r := &Repository{}

	if err := r.CreateFillsPartition(context.Background(), "not-a-date"); err == nil {
		t.Fatal("expected error for unparsable month")
	}
	if err := r.CreateFillsPartition(context.Background(), "2026-08-15"); err == nil {
		t.Fatal("expected error for mid-month start")
	}
}
