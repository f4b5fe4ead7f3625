// Package notify delivers user-visible trade and alert messages to one or more
// channels. Emergency messages carry a distinct title prefix.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo      Level = "info"
	LevelWarning   Level = "warning"
	LevelEmergency Level = "emergency"
)

// EmergencyPrefix is prepended to the title of every emergency message.
const EmergencyPrefix = "EMERGENCY: "

// Sender is implemented by each notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a message out to every sender. A failing sender does not stop
// delivery to the others.
type Notifier struct {
	senders []Sender
	logger  *logrus.Entry
}

// NewNotifier creates a Notifier. With no senders every call is a no-op.
func NewNotifier(logger *logrus.Entry, senders ...Sender) *Notifier {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Notifier{
		senders: senders,
		logger:  logger.WithField("component", "notify"),
	}
}

// Info sends a normal entry/exit message.
func (n *Notifier) Info(ctx context.Context, title, message string) error {
	return n.Notify(ctx, LevelInfo, title, message)
}

// Warning sends a retry/backoff message.
func (n *Notifier) Warning(ctx context.Context, title, message string) error {
	return n.Notify(ctx, LevelWarning, title, message)
}

// Emergency sends an emergency alert.
func (n *Notifier) Emergency(ctx context.Context, title, message string) error {
	return n.Notify(ctx, LevelEmergency, title, message)
}

// Notify dispatches at level. Sender errors are collected into one error.
func (n *Notifier) Notify(ctx context.Context, level Level, title, message string) error {
	if n == nil || len(n.senders) == 0 {
		return nil
	}
	if level == LevelEmergency && !strings.HasPrefix(title, EmergencyPrefix) {
		title = EmergencyPrefix + title
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"sender": s.Name(),
				"level":  level,
			}).Error("notification failed")
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"sender": s.Name(),
			"level":  level,
			"title":  title,
		}).Debug("notification sent")
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// LogSender writes notifications to the log. Used when no chat channel is configured.
type LogSender struct {
	logger *logrus.Entry
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *logrus.Entry) *LogSender {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogSender{logger: logger.WithField("component", "notify")}
}

// Send logs the message; emergency titles log at error level.
func (s *LogSender) Send(_ context.Context, title, message string) error {
	entry := s.logger.WithField("title", title)
	if strings.HasPrefix(title, EmergencyPrefix) {
		entry.Error(message)
	} else {
		entry.Info(message)
	}
	return nil
}

// Name returns the sender identifier.
func (s *LogSender) Name() string { return "log" }
