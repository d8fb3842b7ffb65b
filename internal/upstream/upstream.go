// Package upstream is the opaque client against the exchange's fill
// history endpoint. Everything about the upstream beyond this narrow
// contract, like authentication or endpoint discovery, is an external
// collaborator's concern.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hlfeeder/internal/ingesterr"
	"hlfeeder/internal/models"

	"github.com/shopspring/decimal"
)

// Client calls the info endpoint's userFillsByTime operation.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type fillsRequest struct {
	Type      string `json:"type"`
	User      string `json:"user"`
	StartTime int64  `json:"startTime"`
}

type rawFill struct {
	Time int64  `json:"time"`
	Coin string `json:"coin"`
	Side string `json:"side"`
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Hash string `json:"hash"`
	TID  int64  `json:"tid"`
}

// FetchFills calls userFillsByTime for address starting at startMillis,
// clamped to 0 if negative (the upstream rejects negative start times). A
// response whose body content signals an upstream rate limit is reported
// as ingesterr.RateLimitedError rather than decoded.
func (c *Client) FetchFills(ctx context.Context, address string, startMillis int64) ([]models.Fill, error) {
	if startMillis < 0 {
		startMillis = 0
	}

	body, err := json.Marshal(fillsRequest{Type: "userFillsByTime", User: address, StartTime: startMillis})
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/info", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &ingesterr.UpstreamTransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &ingesterr.UpstreamTransientError{Err: fmt.Errorf("upstream status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ingesterr.UpstreamTransientError{Err: err}
	}

	// A rate-limit rejection is recognized by message content in the
	// body, checked before attempting to decode the fills array — the
	// upstream returns prose, not an array, in that case.
	if ingesterr.IsRateLimited(string(raw)) {
		return nil, &ingesterr.RateLimitedError{Msg: strings.TrimSpace(string(raw))}
	}

	var raws []rawFill
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, &ingesterr.UpstreamMalformedError{Err: fmt.Errorf("status %d: %w", resp.StatusCode, err)}
	}

	fills := make([]models.Fill, 0, len(raws))
	for _, rf := range raws {
		px, err := decimal.NewFromString(rf.Px)
		if err != nil {
			return nil, &ingesterr.UpstreamMalformedError{Err: fmt.Errorf("parse px %q: %w", rf.Px, err)}
		}
		sz, err := decimal.NewFromString(rf.Sz)
		if err != nil {
			return nil, &ingesterr.UpstreamMalformedError{Err: fmt.Errorf("parse sz %q: %w", rf.Sz, err)}
		}

		fills = append(fills, models.Fill{
			FillID: DeriveFillID(rf.TID, rf.Hash),
			TS:     time.UnixMilli(rf.Time).UTC(),
			Coin:   rf.Coin,
			Side:   models.Side(rf.Side),
			Px:     px,
			Sz:     sz,
			IsSpot: IsSpotCoin(rf.Coin),
			IsPerp: !IsSpotCoin(rf.Coin),
		})
	}
	return fills, nil
}

// DeriveFillID builds the stable string uniqueness key for a fill from the
// upstream's trade id and transaction hash.
func DeriveFillID(tid int64, hash string) string {
	return fmt.Sprintf("%d:%s", tid, hash)
}

// IsSpotCoin classifies a coin name: spot coins contain "/" or start with
// "@"; perp is the complement. This is a heuristic pending confirmation of
// the upstream's authoritative taxonomy, so callers treat it as policy.
func IsSpotCoin(coin string) bool {
	return strings.Contains(coin, "/") || strings.HasPrefix(coin, "@")
}
