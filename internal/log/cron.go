package log

import (
	"github.com/robfig/cron/v3"
)

// CronLogger routes robfig/cron's internal logging through this package.
// cron's Info messages are chatty (every schedule/wake), so they go to DEBUG.
type CronLogger struct{}

var _ cron.Logger = CronLogger{}

func (CronLogger) Info(msg string, keysAndValues ...any) {
	Debug("cron: "+msg, keysAndValues...)
}

func (CronLogger) Error(err error, msg string, keysAndValues ...any) {
	Error("cron: "+msg, err, keysAndValues...)
}
