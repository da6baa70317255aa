package main

import (
	"testing"

	"github.com/google/uuid"
)

func TestLoadConfigRequiresDebitReason(t *testing.T) {
	t.Setenv("DISPENSING_DEBIT_REASON_ID", "")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error when DISPENSING_DEBIT_REASON_ID is unset")
	}
}

func TestLoadConfigRejectsMalformedDebitReason(t *testing.T) {
	t.Setenv("DISPENSING_DEBIT_REASON_ID", "not-a-uuid")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error for malformed DISPENSING_DEBIT_REASON_ID")
	}
}

func TestLoadConfigRejectsNilDebitReason(t *testing.T) {
	t.Setenv("DISPENSING_DEBIT_REASON_ID", uuid.Nil.String())

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error for the nil uuid debit reason")
	}
}

func TestLoadConfigParsesDebitReason(t *testing.T) {
	want := uuid.New()
	t.Setenv("DISPENSING_DEBIT_REASON_ID", want.String())

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.DebitReasonID != want {
		t.Errorf("expected debit reason %s, got %s", want, cfg.DebitReasonID)
	}
}
