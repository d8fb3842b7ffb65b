package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFillNotional(t *testing.T) {
	t.Parallel()

	f := Fill{Px: decimal.NewFromInt(10), Sz: decimal.NewFromFloat(2.5)}
	if got := f.Notional(); !got.Equal(decimal.NewFromFloat(25)) {
		t.Fatalf("Notional()=%s want 25", got)
	}
}

func TestClassifyWallet(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		last *time.Time
		want WalletClass
	}{
		{"nil is cold", nil, ClassCold},
		{"just now is hot", ptr(now), ClassHot},
		{"23h ago is hot", ptr(now.Add(-23 * time.Hour)), ClassHot},
		{"25h ago is warm", ptr(now.Add(-25 * time.Hour)), ClassWarm},
		{"6 days ago is warm", ptr(now.Add(-6 * 24 * time.Hour)), ClassWarm},
		{"8 days ago is cold", ptr(now.Add(-8 * 24 * time.Hour)), ClassCold},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyWallet(tc.last, now); got != tc.want {
				t.Fatalf("ClassifyWallet()=%s want %s", got, tc.want)
			}
		})
	}
}

func TestBaseInterval(t *testing.T) {
	t.Parallel()

	cases := []struct {
		class WalletClass
		want  time.Duration
	}{
		{ClassHot, 60 * time.Second},
		{ClassWarm, 900 * time.Second},
		{ClassCold, 3600 * time.Second},
	}

	for _, tc := range cases {
		if got := tc.class.BaseInterval(); got != tc.want {
			t.Fatalf("%s.BaseInterval()=%s want %s", tc.class, got, tc.want)
		}
	}
}

func ptr(t time.Time) *time.Time { return &t }
