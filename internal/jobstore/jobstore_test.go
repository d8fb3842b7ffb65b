package jobstore

import (
	"encoding/json"
	"fmt"
	"testing"

	"hlfeeder/internal/ingesterr"
	"hlfeeder/internal/models"

	"github.com/google/uuid"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func TestDecodeIngestWallet(t *testing.T) {
	t.Parallel()

	orgID := uuid.New()
	job := models.Job{
		Type:    models.JobIngestWallet,
		Payload: mustMarshal(t, models.IngestWalletPayload{OrgID: orgID, WalletID: 7, Address: "0xabc"}),
	}

	p, err := DecodeIngestWallet(job)
	if err != nil {
		t.Fatalf("DecodeIngestWallet: %v", err)
	}
	if p.OrgID != orgID || p.WalletID != 7 || p.Address != "0xabc" {
		t.Fatalf("decoded %+v", p)
	}
}

func TestDecodeRollupPayloads(t *testing.T) {
	t.Parallel()

	orgID := uuid.New()
	days := []string{"2026-01-01", "2026-01-02"}

	wd, err := DecodeRollupWalletDay(models.Job{
		Type:    models.JobRollupWalletDay,
		Payload: mustMarshal(t, models.RollupWalletDayPayload{OrgID: orgID, WalletID: 7, Days: days}),
	})
	if err != nil {
		t.Fatalf("DecodeRollupWalletDay: %v", err)
	}
	if wd.WalletID != 7 || len(wd.Days) != 2 || wd.Days[0] != "2026-01-01" {
		t.Fatalf("decoded %+v", wd)
	}

	gd, err := DecodeRollupGlobalDay(models.Job{
		Type:    models.JobRollupGlobalDay,
		Payload: mustMarshal(t, models.RollupGlobalDayPayload{OrgID: orgID, Days: days}),
	})
	if err != nil {
		t.Fatalf("DecodeRollupGlobalDay: %v", err)
	}
	if gd.OrgID != orgID || len(gd.Days) != 2 {
		t.Fatalf("decoded %+v", gd)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	job := models.Job{Type: models.JobIngestWallet, Payload: []byte("not json")}
	if _, err := DecodeIngestWallet(job); err == nil {
		t.Fatal("expected decode error for garbage payload")
	}
}

func TestIsFatalRouting(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"constraint violation", &ingesterr.ConstraintViolationError{Err: fmt.Errorf("check failed")}, true},
		{"wrapped constraint violation", fmt.Errorf("insert: %w", &ingesterr.ConstraintViolationError{Err: fmt.Errorf("fk")}), true},
		{"rate limited", &ingesterr.RateLimitedError{Msg: "too many"}, false},
		{"database transient", &ingesterr.DatabaseTransientError{Err: fmt.Errorf("conn reset")}, false},
		{"plain error", fmt.Errorf("anything else"), false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsFatal(tc.err); got != tc.want {
				t.Fatalf("IsFatal(%v)=%v want %v", tc.err, got, tc.want)
			}
		})
	}
}
