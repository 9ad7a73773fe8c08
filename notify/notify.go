// Package notify is the user-facing notification collaborator consumed by
// mutation callbacks. It stands in for whatever toast/banner surface the
// application renders; the cache core only guarantees every mutation failure
// reaches a Notifier with a human-readable message.
package notify

import "github.com/sirupsen/logrus"

// Notifier receives success and failure messages from mutations.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// LogNotifier writes notifications to a logrus logger. It is the default
// sink for headless services and tests that still want the messages visible.
type LogNotifier struct {
	log *logrus.Logger
}

// NewLogNotifier returns a notifier writing to l, or to the logrus standard
// logger when l is nil.
func NewLogNotifier(l *logrus.Logger) *LogNotifier {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogNotifier{log: l}
}

func (n *LogNotifier) Success(msg string) {
	n.log.WithField("notification", "success").Info(msg)
}

func (n *LogNotifier) Error(msg string) {
	n.log.WithField("notification", "error").Error(msg)
}

// Discard drops all notifications.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Success(string) {}
func (discard) Error(string)   {}
