package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/unkn0wn-root/vermaster"
)

func TestLogrusLoggerForwardsLevelsAndFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Error("invalidate failed", vermaster.Fields{"key": "obj:test:Mem~1"})

	e := hook.LastEntry()
	if e == nil || e.Level != logrus.ErrorLevel || e.Message != "invalidate failed" {
		t.Fatalf("entry = %+v", e)
	}
	if e.Data["key"] != "obj:test:Mem~1" || e.Data["component"] != "vermaster" {
		t.Fatalf("fields = %v", e.Data)
	}
}
