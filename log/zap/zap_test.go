package zap

import (
	"testing"

	"github.com/unkn0wn-root/vermaster"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerForwardsLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("evicted versions", vermaster.Fields{"oid": "Mem~1", "count": 2})
	l.Warn("shared tier get failed", nil)

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[0].LoggerName != "vermaster" {
		t.Fatalf("first entry = %+v", entries[0].Entry)
	}
	if got := entries[0].ContextMap()["oid"]; got != "Mem~1" {
		t.Fatalf("oid field = %v", got)
	}
	if entries[1].Level != zapcore.WarnLevel || len(entries[1].Context) != 0 {
		t.Fatalf("second entry = %+v", entries[1])
	}
}
