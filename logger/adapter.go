package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogEventAdapter adapts zerolog events to the LogEvent interface and masks
// sensitive string and structured fields on the way in.
type LogEventAdapter struct {
	event  *zerolog.Event
	filter *SensitiveDataFilter
}

// Msg logs the message
func (lea *LogEventAdapter) Msg(msg string) {
	lea.event.Msg(msg)
}

// Msgf logs a formatted message
func (lea *LogEventAdapter) Msgf(format string, args ...any) {
	lea.event.Msgf(format, args...)
}

// Err adds an error to the log event
func (lea *LogEventAdapter) Err(err error) LogEvent {
	lea.event = lea.event.Err(err)
	return lea
}

// Str adds a string field to the log event
func (lea *LogEventAdapter) Str(key, value string) LogEvent {
	lea.event = lea.event.Str(key, lea.filter.FilterString(key, value))
	return lea
}

// Int adds an integer field to the log event
func (lea *LogEventAdapter) Int(key string, value int) LogEvent {
	lea.event = lea.event.Int(key, value)
	return lea
}

// Int64 adds an int64 field to the log event
func (lea *LogEventAdapter) Int64(key string, value int64) LogEvent {
	lea.event = lea.event.Int64(key, value)
	return lea
}

// Bool adds a boolean field to the log event
func (lea *LogEventAdapter) Bool(key string, value bool) LogEvent {
	lea.event = lea.event.Bool(key, value)
	return lea
}

// Dur adds a duration field to the log event
func (lea *LogEventAdapter) Dur(key string, d time.Duration) LogEvent {
	lea.event = lea.event.Dur(key, d)
	return lea
}

// Interface adds an arbitrary field to the log event
func (lea *LogEventAdapter) Interface(key string, i any) LogEvent {
	lea.event = lea.event.Interface(key, lea.filter.FilterValue(key, i))
	return lea
}

// Bytes adds a byte slice field to the log event
func (lea *LogEventAdapter) Bytes(key string, val []byte) LogEvent {
	lea.event = lea.event.Bytes(key, val)
	return lea
}
