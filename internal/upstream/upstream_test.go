package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hlfeeder/internal/ingesterr"

	"github.com/shopspring/decimal"
)

func TestIsSpotCoin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		coin string
		want bool
	}{
		{"ETH/USDC", true},
		{"@107", true},
		{"ETH", false},
		{"BTC", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := IsSpotCoin(tc.coin); got != tc.want {
			t.Fatalf("IsSpotCoin(%q)=%v want %v", tc.coin, got, tc.want)
		}
	}
}

func TestDeriveFillID(t *testing.T) {
	t.Parallel()

	a := DeriveFillID(42, "0xabc")
	b := DeriveFillID(42, "0xabc")
	if a != b {
		t.Fatalf("DeriveFillID should be deterministic: %q != %q", a, b)
	}

	c := DeriveFillID(43, "0xabc")
	if a == c {
		t.Fatalf("DeriveFillID should differ by trade id")
	}
}

func TestFetchFillsParsesResponse(t *testing.T) {
	t.Parallel()

	var gotReq fillsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`[
			{"time": 1767225900000, "coin": "BTC", "side": "B", "px": "10", "sz": "2", "hash": "0xaa", "tid": 1},
			{"time": 1767225960000, "coin": "ETH/USDC", "side": "A", "px": "2000", "sz": "0.5", "hash": "0xbb", "tid": 2}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	fills, err := c.FetchFills(context.Background(), "0xdeadbeef", -5)
	if err != nil {
		t.Fatalf("FetchFills: %v", err)
	}

	if gotReq.Type != "userFillsByTime" || gotReq.User != "0xdeadbeef" {
		t.Fatalf("unexpected request body: %+v", gotReq)
	}
	if gotReq.StartTime != 0 {
		t.Fatalf("negative startMillis should clamp to 0, sent %d", gotReq.StartTime)
	}

	if len(fills) != 2 {
		t.Fatalf("len(fills)=%d want 2", len(fills))
	}
	perp, spot := fills[0], fills[1]
	if !perp.IsPerp || perp.IsSpot {
		t.Fatalf("BTC fill should classify perp: %+v", perp)
	}
	if !spot.IsSpot || spot.IsPerp {
		t.Fatalf("ETH/USDC fill should classify spot: %+v", spot)
	}
	if !perp.Px.Equal(decimal.NewFromInt(10)) || !perp.Sz.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("px/sz parsed wrong: %s %s", perp.Px, perp.Sz)
	}
	if perp.FillID != DeriveFillID(1, "0xaa") {
		t.Fatalf("FillID=%q", perp.FillID)
	}
	if want := time.UnixMilli(1767225900000).UTC(); !perp.TS.Equal(want) {
		t.Fatalf("TS=%v want %v", perp.TS, want)
	}
}

func TestFetchFillsRateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("Too many requests, slow down"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.FetchFills(context.Background(), "0xdeadbeef", 0)

	var rl *ingesterr.RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("want RateLimitedError, got %T: %v", err, err)
	}
}

func TestFetchFillsServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.FetchFills(context.Background(), "0xdeadbeef", 0)

	var transient *ingesterr.UpstreamTransientError
	if !errors.As(err, &transient) {
		t.Fatalf("want UpstreamTransientError, got %T: %v", err, err)
	}
}

func TestFetchFillsMalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "an array"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.FetchFills(context.Background(), "0xdeadbeef", 0)

	var malformed *ingesterr.UpstreamMalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("want UpstreamMalformedError, got %T: %v", err, err)
	}
}

func TestFetchFillsBadDecimal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"time": 1767225900000, "coin": "BTC", "side": "B", "px": "not-a-number", "sz": "2", "hash": "0xaa", "tid": 1}]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.FetchFills(context.Background(), "0xdeadbeef", 0)

	var malformed *ingesterr.UpstreamMalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("want UpstreamMalformedError, got %T: %v", err, err)
	}
}
