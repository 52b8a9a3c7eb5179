package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBuffered(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestKeysAreRedacted(t *testing.T) {
	h, buf := newBuffered(Options{})
	h.GenBumpError("obj:prod:Trade~42", errors.New("down"))

	out := buf.String()
	if strings.Contains(out, "Trade~42") {
		t.Fatalf("storage key leaked: %s", out)
	}
	if !strings.Contains(out, "vermaster.gen_bump_error") || !strings.Contains(out, h.redact("obj:prod:Trade~42")) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestSelfHealSampling(t *testing.T) {
	h, buf := newBuffered(Options{SelfHealEvery: 3, Redact: func(k string) string { return k }})
	for i := 0; i < 9; i++ {
		h.SharedSelfHeal("doc:ns:a", "corrupt")
	}
	if n := strings.Count(buf.String(), "vermaster.shared_self_heal"); n != 3 {
		t.Fatalf("logged %d self-heals, want 3", n)
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	h := New(nil, Options{})
	h.InvalidateOutage("k", errors.New("a"), errors.New("b"))
	h.PrefetchDropped("search:ns:x")
}
