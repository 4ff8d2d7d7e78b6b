package logctx_test

import (
	"context"
	"log/slog"
	"testing"

	"moria.us/mlink/logctx"
)

func TestWarningsAccumulate(t *testing.T) {
	l := logctx.New(slog.Default())
	l.Warning("calltransform", "no calls - call transformation not applied")
	l.Warning("", "second warning")

	got := l.Warnings()
	if len(got) != 2 {
		t.Fatalf("len(Warnings()) = %d, want 2", len(got))
	}
	if got[0] != "calltransform: no calls - call transformation not applied" {
		t.Errorf("got[0] = %q", got[0])
	}
	if got[1] != "second warning" {
		t.Errorf("got[1] = %q", got[1])
	}
}

func TestFromContextRoundTrip(t *testing.T) {
	l := logctx.New(slog.Default())
	ctx := logctx.WithLogger(context.Background(), l)
	if logctx.FromContext(ctx) != l {
		t.Error("FromContext did not return the stored logger")
	}
}

func TestFromContextDefaultWhenAbsent(t *testing.T) {
	if logctx.FromContext(context.Background()) == nil {
		t.Error("FromContext returned nil without a stored logger")
	}
}
