package config

import (
	"os"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DisplayWidth != 128 || cfg.DisplayHeight != 64 {
		t.Fatalf("unexpected display geometry: %dx%d", cfg.DisplayWidth, cfg.DisplayHeight)
	}
	if cfg.RadioFrequencyMHz != 433.0 {
		t.Fatalf("unexpected default frequency: %v", cfg.RadioFrequencyMHz)
	}
	if len(cfg.EventActions) != 0 {
		t.Fatalf("expected no event actions by default, got %v", cfg.EventActions)
	}
}

func TestParseEncryptionKeyFromFlag(t *testing.T) {
	cfg, err := Parse([]string{"-encryption-key", "000102030405060708090a0b0c0d0e0f"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}
	if cfg.EncryptionKey != want {
		t.Fatalf("EncryptionKey = %x, want %x", cfg.EncryptionKey, want)
	}
}

func TestParseEncryptionKeyWrongLength(t *testing.T) {
	if _, err := Parse([]string{"-encryption-key", "aabb"}); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestEnvOverridesEncryptionKey(t *testing.T) {
	os.Setenv(envEncryptionKey, "0f0e0d0c0b0a09080706050403020100")
	defer os.Unsetenv(envEncryptionKey)

	cfg, err := Parse([]string{"-encryption-key", "000102030405060708090a0b0c0d0e0f"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := [16]byte{0x0f, 0x0e, 0x0d, 0x0c, 0x0b, 0x0a, 0x09, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01, 0x00}
	if cfg.EncryptionKey != want {
		t.Fatalf("EncryptionKey = %x, want %x (env override)", cfg.EncryptionKey, want)
	}
}

func TestParseEventActions(t *testing.T) {
	doc := `{"5": {"0": {"url": "http://example.invalid/hook", "delay_ms": 250}}}`
	cfg, err := Parse([]string{"-event-actions", doc})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	action, ok := cfg.EventActions[5][0]
	if !ok {
		t.Fatalf("expected action for node 5 bit 0, got %v", cfg.EventActions)
	}
	if action.URL != "http://example.invalid/hook" || action.Delay != 250*time.Millisecond {
		t.Fatalf("unexpected action: %+v", action)
	}
}

func TestParseEventActionsInvalidJSON(t *testing.T) {
	if _, err := Parse([]string{"-event-actions", "{not json"}); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
