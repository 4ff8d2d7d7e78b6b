package config_test

import (
	"testing"

	"moria.us/mlink/config"
)

func TestNewOptionsDefaults(t *testing.T) {
	o := config.NewOptions()
	if o.EntrySymbol != "_main" {
		t.Errorf("EntrySymbol = %q, want _main", o.EntrySymbol)
	}
	if o.HashSizeMiB <= 0 {
		t.Errorf("HashSizeMiB = %d, want > 0", o.HashSizeMiB)
	}
}

func TestMatchesDLL(t *testing.T) {
	patterns := []string{"kernel32.dll", "user*.dll"}
	if !config.MatchesDLL(patterns, "user32.dll") {
		t.Error("expected user32.dll to match user*.dll")
	}
	if config.MatchesDLL(patterns, "gdi32.dll") {
		t.Error("gdi32.dll should not match")
	}
}

func TestReplacementFor(t *testing.T) {
	repl := map[string]string{"old*.dll": "new.dll"}
	got, ok := config.ReplacementFor(repl, "old32.dll")
	if !ok || got != "new.dll" {
		t.Fatalf("ReplacementFor = (%q, %v), want (new.dll, true)", got, ok)
	}
	if _, ok := config.ReplacementFor(repl, "other.dll"); ok {
		t.Error("expected no match for other.dll")
	}
}
