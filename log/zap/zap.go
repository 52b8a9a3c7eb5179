// Package zap adapts a *zap.Logger to vermaster.Logger.
package zap

import (
	"github.com/unkn0wn-root/vermaster"
	"go.uber.org/zap"
)

var _ vermaster.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

func (z ZapLogger) Debug(msg string, f vermaster.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f vermaster.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f vermaster.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f vermaster.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f vermaster.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// New returns an adapter logging under the "vermaster" logger name.
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.Named("vermaster")} }
