package sentry_helper

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryHelper reports errors to Sentry when it is configured. A nil or
// disabled helper drops everything, so components can hold one
// unconditionally.
type SentryHelper struct {
	enabled bool
	logger  *slog.Logger
}

// NewSentryHelper creates a new SentryHelper instance.
func NewSentryHelper(enabled bool, logger *slog.Logger) *SentryHelper {
	if logger == nil {
		logger = slog.Default()
	}
	return &SentryHelper{
		enabled: enabled,
		logger:  logger,
	}
}

// IsEnabled returns whether Sentry is enabled.
func (h *SentryHelper) IsEnabled() bool {
	return h != nil && h.enabled
}

// CaptureExceptionWithContext captures an exception with tags and extra data.
func (h *SentryHelper) CaptureExceptionWithContext(err error, tags map[string]string, extra map[string]interface{}) {
	if !h.IsEnabled() || err == nil {
		return
	}

	// Clone hub to avoid data races in goroutines.
	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		for key, value := range tags {
			scope.SetTag(key, value)
		}
		for key, value := range extra {
			scope.SetExtra(key, value)
		}
		hub.CaptureException(err)
	})
}

// CaptureError captures an error tagged with the component and operation
// that produced it.
func (h *SentryHelper) CaptureError(err error, component string, operation string) {
	if !h.IsEnabled() || err == nil {
		return
	}

	tags := map[string]string{
		"component": component,
		"operation": operation,
	}
	h.CaptureExceptionWithContext(err, tags, nil)
}

// CaptureMessage captures an informational message.
func (h *SentryHelper) CaptureMessage(msg string, component string) {
	if !h.IsEnabled() || msg == "" {
		return
	}

	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetLevel(sentry.LevelInfo)
		hub.CaptureMessage(msg)
	})
}

// AddBreadcrumb records a step leading up to a possible error.
func (h *SentryHelper) AddBreadcrumb(category, message string, level sentry.Level, data map[string]interface{}) {
	if !h.IsEnabled() || message == "" {
		return
	}

	// Breadcrumbs go to the current hub so later captures include them.
	sentry.CurrentHub().AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     level,
		Data:      data,
		Timestamp: time.Now(),
	}, nil)
}

// SafeFlush flushes buffered events, waiting at most timeout.
func (h *SentryHelper) SafeFlush(timeout time.Duration) {
	if !h.IsEnabled() {
		return
	}

	if !sentry.Flush(timeout) {
		h.logger.Warn("Sentry flush timeout", "timeout", timeout)
	}
}
