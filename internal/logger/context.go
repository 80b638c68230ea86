package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds session-scoped logging context for an RDP session.
type LogContext struct {
	SessionID string    // host-assigned session identifier
	Channel   string    // virtual channel name: cliprdr, rdpdr, rdpsnd
	DeviceID  uint32    // RDPDR device id, when the log line concerns one device
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a session.
func NewLogContext(sessionID string) *LogContext {
	return &LogContext{
		SessionID: sessionID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		SessionID: lc.SessionID,
		Channel:   lc.Channel,
		DeviceID:  lc.DeviceID,
		StartTime: lc.StartTime,
	}
}

// WithChannel returns a copy with the channel name set
func (lc *LogContext) WithChannel(channel string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Channel = channel
	}
	return clone
}

// WithDevice returns a copy with the device id set
func (lc *LogContext) WithDevice(deviceID uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.DeviceID = deviceID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
