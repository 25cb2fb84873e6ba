package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs an outbound API call. Failures are logged at warn
// because the pipeline recovers from them.
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration":    duration,
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		l.DebugWithFields("API request completed", fields)
	case statusCode >= 500:
		l.ErrorWithFields("API request server error", fields)
	default:
		l.WarnWithFields("API request failed", fields)
	}
}

// LogCooldown logs the pause between a failed first attempt and its retry
func LogCooldown(l Logger, phase, item string, wait time.Duration, err error) {
	l.WithError(err).WithFields(map[string]interface{}{
		"phase":    phase,
		"item":     item,
		"cooldown": wait,
		"resume":   time.Now().Add(wait).Format("15:04:05"),
	}).Warn("Fetch failed, cooling down before retry")
}

// LogPhaseProgress logs how far a phase has got through its work list
func LogPhaseProgress(l Logger, phase string, done, total int) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(done) / float64(total) * 100
	}

	l.WithFields(map[string]interface{}{
		"phase":      phase,
		"done":       done,
		"total":      total,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	}).Info("Phase progress")
}

// LogMisses logs the final miss list of a phase
func LogMisses(l Logger, phase string, misses []string) {
	if len(misses) == 0 {
		l.WithField("phase", phase).Info("Phase finished with no misses")
		return
	}
	l.WithFields(map[string]interface{}{
		"phase":  phase,
		"misses": len(misses),
		"ids":    misses,
	}).Warn("Phase finished with misses")
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	l = l.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
