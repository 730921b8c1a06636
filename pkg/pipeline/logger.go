package pipeline

import "github.com/sirupsen/logrus"

// LogrusLogger adapts *logrus.Logger to the pipeline's Logger port,
// tagging every entry with component=pipeline.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger builds a LogrusLogger around l (pass logrus.New() for a
// sensible default, or a shared *logrus.Logger to match the host app's
// formatting).
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.New()
	}
	return &LogrusLogger{entry: l.WithField("component", "pipeline")}
}

func argsToFields(args []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

func (l *LogrusLogger) Debug(msg string, args ...interface{}) {
	l.entry.WithFields(argsToFields(args)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, args ...interface{}) {
	l.entry.WithFields(argsToFields(args)).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, args ...interface{}) {
	l.entry.WithFields(argsToFields(args)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, args ...interface{}) {
	l.entry.WithFields(argsToFields(args)).Error(msg)
}
