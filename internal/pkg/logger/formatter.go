package logger

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// FormatTimestamp formats a time to millisecond precision.
// Format: "2006-01-02 15:04:05.000"
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000")
}

// NowFormatted returns the current time formatted the same way.
func NowFormatted() string {
	return FormatTimestamp(time.Now())
}

// LogType tags the structured entries emitted by this package.
type LogType string

const (
	ConnectionLog LogType = "connection" // per-connection lifecycle events
	PacketLog     LogType = "packet"     // dropped/rejected packet events
	SystemLog     LogType = "system"     // engine startup/shutdown/purge events
	SecurityLog   LogType = "security"   // raw-socket and privilege related events
)

// LogLevel mirrors logrus levels without forcing callers to import logrus
// just to pick a severity.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// ConnectionLogEntry records a connection table transition.
type ConnectionLogEntry struct {
	Proto   string `json:"proto"`
	SrcIP   string `json:"src_ip"`
	SrcPort uint16 `json:"src_port"`
	DstIP   string `json:"dst_ip"`
	DstPort uint16 `json:"dst_port"`
	Event   string `json:"event"` // opened, closed, destroyed
	Reason  string `json:"reason,omitempty"`
}

// LogConnectionEvent records a connection lifecycle transition.
func LogConnectionEvent(entry ConnectionLogEntry) {
	if LoggerInstance == nil {
		return
	}
	LoggerInstance.logger.WithFields(logrus.Fields{
		"type":     ConnectionLog,
		"proto":    entry.Proto,
		"src_ip":   entry.SrcIP,
		"src_port": entry.SrcPort,
		"dst_ip":   entry.DstIP,
		"dst_port": entry.DstPort,
		"event":    entry.Event,
		"reason":   entry.Reason,
	}).Debugf("connection %s", entry.Event)
}

// LogPacketDrop records a rejected or malformed packet.
func LogPacketDrop(reason string, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}
	fields := logrus.Fields{
		"type":   PacketLog,
		"reason": reason,
	}
	for k, v := range extraFields {
		fields[k] = v
	}
	LoggerInstance.logger.WithFields(fields).Warn("packet dropped")
}

// LogSystemEvent records a system-level event (startup, shutdown, purge
// tick, config reload) at the given severity.
func LogSystemEvent(component, event, message string, level LogLevel, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	logrusLevel := toLogrusLevel(level)
	fields := logrus.Fields{
		"type":      SystemLog,
		"component": component,
		"event":     event,
	}
	for k, v := range extraFields {
		fields[k] = v
	}

	msg := fmt.Sprintf("%s: %s", component, event)
	if message != "" {
		msg = message
	}

	switch logrusLevel {
	case logrus.DebugLevel:
		LoggerInstance.logger.WithFields(fields).Debug(msg)
	case logrus.WarnLevel:
		LoggerInstance.logger.WithFields(fields).Warn(msg)
	case logrus.ErrorLevel:
		LoggerInstance.logger.WithFields(fields).Error(msg)
	case logrus.FatalLevel:
		LoggerInstance.logger.WithFields(fields).Fatal(msg)
	default:
		LoggerInstance.logger.WithFields(fields).Info(msg)
	}
}

// LogSecurityEvent records raw-socket or privilege related events, e.g.
// a failed attempt to open the shared ICMP socket.
func LogSecurityEvent(eventType, severity, source, message string, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}
	fields := logrus.Fields{
		"type":       SecurityLog,
		"event_type": eventType,
		"severity":   severity,
		"source":     source,
	}
	for k, v := range extraFields {
		fields[k] = v
	}
	LoggerInstance.logger.WithFields(fields).Warn(message)
}
