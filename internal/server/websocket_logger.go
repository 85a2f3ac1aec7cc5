package server

import (
	"go.uber.org/zap"
)

// WebSocketLogger provides structured logging for WebSocket events
type WebSocketLogger struct {
	logger *zap.Logger
}

// NewWebSocketLogger creates a new WebSocket logger. A nil base uses the
// global zap logger.
func NewWebSocketLogger(base *zap.Logger) *WebSocketLogger {
	if base == nil {
		base = zap.L()
	}
	return &WebSocketLogger{
		logger: base.With(zap.String("component", "websocket")),
	}
}

func connFields(event, connID, remoteAddr string, fields []zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event", event),
		zap.String("conn_id", connID),
		zap.String("remote_addr", remoteAddr),
	}, fields...)
}

// Info logs info level event
func (l *WebSocketLogger) Info(event, connID, remoteAddr string, fields ...zap.Field) {
	l.logger.Info("websocket_event", connFields(event, connID, remoteAddr, fields)...)
}

// Error logs error level event
func (l *WebSocketLogger) Error(event, connID, remoteAddr string, err error, fields ...zap.Field) {
	l.logger.Error("websocket_error", connFields(event, connID, remoteAddr, append(fields, zap.Error(err)))...)
}

// Warn logs warning level event
func (l *WebSocketLogger) Warn(event, connID, remoteAddr string, fields ...zap.Field) {
	l.logger.Warn("websocket_warning", connFields(event, connID, remoteAddr, fields)...)
}
