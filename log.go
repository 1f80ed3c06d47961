package tick

import (
	"context"
	"io"
	"io/ioutil"

	"github.com/sirupsen/logrus"
)

type loggerKey uint8

const ctxLoggerKey loggerKey = 0

// Logger is what the loop and the steps log to. Both a logrus logger and
// a logrus entry satisfy it.
type Logger = logrus.FieldLogger

// NopLogger drops every message, fatal and panic levels still exit and panic.
var NopLogger Logger = GoLog(ioutil.Discard, "", logrus.PanicLevel)

// GoLog creates a text logger that writes to w at the given level.
// When w is nil the output is discarded. A non-empty prefix is attached as the scope field.
func GoLog(w io.Writer, prefix string, level logrus.Level) Logger {
	if w == nil {
		w = ioutil.Discard
	}
	l := logrus.New()
	l.Out = w
	l.Level = level
	l.Formatter = &logrus.TextFormatter{DisableTimestamp: true, DisableColors: true}
	if prefix == "" {
		return l
	}
	return l.WithField("scope", prefix)
}

// SetLogger on the context
func SetLogger(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey, log)
}

// ContextLogger gets the logger from the context, defaults to the NopLogger
func ContextLogger(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxLoggerKey).(Logger); ok {
		return l
	}
	return NopLogger
}
