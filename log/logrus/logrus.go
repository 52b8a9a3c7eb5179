package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/vermaster"
)

var _ vermaster.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f vermaster.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f vermaster.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f vermaster.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f vermaster.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}

// New returns an adapter tagging every entry with component=vermaster.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "vermaster")}
}
