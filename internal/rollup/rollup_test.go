package rollup

import (
	"context"
	"errors"
	"testing"

	"hlfeeder/internal/ingesterr"
	"hlfeeder/internal/models"
)

func TestHandlerNames(t *testing.T) {
	t.Parallel()

	if got := (&WalletDayHandler{}).Name(); got != models.JobRollupWalletDay {
		t.Fatalf("WalletDayHandler.Name()=%s", got)
	}
	if got := (&GlobalDayHandler{}).Name(); got != models.JobRollupGlobalDay {
		t.Fatalf("GlobalDayHandler.Name()=%s", got)
	}
}

func TestWalletDayHandlerRejectsBadPayload(t *testing.T) {
	t.Parallel()

	h := &WalletDayHandler{}
	err := h.Handle(context.Background(), models.Job{Type: models.JobRollupWalletDay, Payload: []byte("nope")})

	var cv *ingesterr.ConstraintViolationError
	if !errors.As(err, &cv) {
		t.Fatalf("want ConstraintViolationError, got %T: %v", err, err)
	}
}

func TestWalletDayHandlerRejectsBadDay(t *testing.T) {
	t.Parallel()

	h := &WalletDayHandler{}
	err := h.Handle(context.Background(), models.Job{
		Type:    models.JobRollupWalletDay,
		Payload: []byte(`{"org_id":"00000000-0000-0000-0000-000000000001","wallet_id":1,"days":["01/02/2026"]}`),
	})

	var cv *ingesterr.ConstraintViolationError
	if !errors.As(err, &cv) {
		t.Fatalf("want ConstraintViolationError for unparsable day, got %T: %v", err, err)
	}
}

func TestGlobalDayHandlerRejectsBadPayload(t *testing.T) {
	t.Parallel()

	h := &GlobalDayHandler{}
	err := h.Handle(context.Background(), models.Job{Type: models.JobRollupGlobalDay, Payload: []byte("{")})

	var cv *ingesterr.ConstraintViolationError
	if !errors.As(err, &cv) {
		t.Fatalf("want ConstraintViolationError, got %T: %v", err, err)
	}
}
