package retry

import (
	"github.com/moolen/ferry/internal/logging"
)

// Observer is notified about every dial attempt and every failed attempt.
// Implementations must be safe for concurrent use.
type Observer interface {
	OnAttempt(target string, attempt int)
	OnFailure(target string, attempt int, err error)
}

type nopObserver struct{}

func (nopObserver) OnAttempt(string, int) {}
func (nopObserver) OnFailure(string, int, error) {}

// Observers fans notifications out to several observers. Nil entries are skipped.
func Observers(observers ...Observer) Observer {
	var out multiObserver
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) OnAttempt(target string, attempt int) {
	for _, o := range m {
		o.OnAttempt(target, attempt)
	}
}

func (m multiObserver) OnFailure(target string, attempt int, err error) {
	for _, o := range m {
		o.OnFailure(target, attempt, err)
	}
}

// LogObserver logs failed attempts with the given logger.
type LogObserver struct {
	Logger      *logging.Logger
	MaxAttempts int
}

// OnAttempt logs at debug level.
func (l LogObserver) OnAttempt(target string, attempt int) {
	l.Logger.Debug("Connecting to %s (attempt %d/%d)", target, attempt, l.MaxAttempts)
}

// OnFailure logs the dial error as a warning.
func (l LogObserver) OnFailure(target string, attempt int, err error) {
	l.Logger.WarnWithFields("connection attempt failed",
		logging.Field("target", target),
		logging.Field("attempt", attempt),
		logging.Field("max_attempts", l.MaxAttempts),
		logging.Field("error", err.Error()),
	)
}
