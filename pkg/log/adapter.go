// Package log bridges third-party loggers onto logrus.
package log

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// BadgerLogger implements badger.Logger on a logrus entry. The outcome cache is
// auxiliary, so badger's informational chatter (compactions, value log GC) is
// demoted to debug. Badger terminates messages with a newline; it is trimmed so
// text and JSON formatters stay on one line.
type BadgerLogger struct {
	entry *logrus.Entry
}

// NewBadgerLogger wraps entry for use with badger.Options.WithLogger.
func NewBadgerLogger(entry *logrus.Entry) *BadgerLogger {
	return &BadgerLogger{entry: entry}
}

func (l *BadgerLogger) Errorf(f string, v ...interface{}) {
	l.entry.Errorf(strings.TrimRight(f, "\n"), v...)
}

func (l *BadgerLogger) Warningf(f string, v ...interface{}) {
	l.entry.Warnf(strings.TrimRight(f, "\n"), v...)
}

func (l *BadgerLogger) Infof(f string, v ...interface{}) {
	l.entry.Debugf(strings.TrimRight(f, "\n"), v...)
}

func (l *BadgerLogger) Debugf(f string, v ...interface{}) {
	l.entry.Tracef(strings.TrimRight(f, "\n"), v...)
}
