package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

// logEntry mirrors the slog JSON output for assertions. Extra attributes
// land in Fields alongside the standard keys.
type logEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

func parseLogEntry(t *testing.T, data []byte) logEntry {
	t.Helper()
	fields := make(map[string]interface{})
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	entry := logEntry{Fields: fields}
	if level, ok := fields["level"].(string); ok {
		entry.Level = level
	}
	if msg, ok := fields["msg"].(string); ok {
		entry.Message = msg
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		if buf.Len() == 0 {
			t.Error("Info message should be logged at Info level")
		}

		entry := parseLogEntry(t, buf.Bytes())
		if entry.Level != "INFO" {
			t.Errorf("Expected level INFO, got %s", entry.Level)
		}
		if entry.Message != "info message" {
			t.Errorf("Expected message 'info message', got %s", entry.Message)
		}
	})

	t.Run("warn logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		if buf.Len() == 0 {
			t.Error("Warn message should be logged at Info level")
		}
	})

	t.Run("error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Error("error message")
		if buf.Len() == 0 {
			t.Error("Error message should be logged at Info level")
		}
	})

	t.Run("info not logged at warn level", func(t *testing.T) {
		var warnBuf bytes.Buffer
		warnLogger := NewLogger(WarnLevel, &warnBuf)
		warnLogger.Info("info message")
		if warnBuf.Len() > 0 {
			t.Error("Info message should not be logged at Warn level")
		}
	})
}

func TestLogger_Level(t *testing.T) {
	logger := NewLogger(WarnLevel, nil)
	if logger.Level() != WarnLevel {
		t.Errorf("Level() = %v, want %v", logger.Level(), WarnLevel)
	}
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("key", "value").Info("message")

	entry := parseLogEntry(t, buf.Bytes())
	if entry.Fields["key"] != "value" {
		t.Errorf("Expected field 'key' to be 'value', got %v", entry.Fields["key"])
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	fields := map[string]interface{}{
		"key1": "value1",
		"key2": 42,
	}
	logger.WithFields(fields).Info("message")

	entry := parseLogEntry(t, buf.Bytes())
	if entry.Fields["key1"] != "value1" {
		t.Errorf("Expected field 'key1' to be 'value1', got %v", entry.Fields["key1"])
	}
	if entry.Fields["key2"] != float64(42) {
		t.Errorf("Expected field 'key2' to be 42, got %v", entry.Fields["key2"])
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	err := strings.NewReader("test error").UnreadByte()
	logger.WithError(err).Error("something went wrong")

	entry := parseLogEntry(t, buf.Bytes())
	if _, exists := entry.Fields["error"]; !exists {
		t.Error("Expected error field to exist")
	}
}

func TestLogger_WithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(nil).Error("no error attached")

	entry := parseLogEntry(t, buf.Bytes())
	if _, exists := entry.Fields["error"]; exists {
		t.Error("Expected no error field for nil error")
	}
}

func TestLogger_Formatters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("Debugf", func(t *testing.T) {
		buf.Reset()
		debugLogger := NewLogger(DebugLevel, &buf)
		debugLogger.Debugf("test %s %d", "string", 42)

		entry := parseLogEntry(t, buf.Bytes())
		if entry.Message != "test string 42" {
			t.Errorf("Expected formatted message, got %s", entry.Message)
		}
	})

	t.Run("Infof", func(t *testing.T) {
		buf.Reset()
		logger.Infof("test %d", 123)

		entry := parseLogEntry(t, buf.Bytes())
		if entry.Message != "test 123" {
			t.Errorf("Expected formatted message, got %s", entry.Message)
		}
	})

	t.Run("Warnf", func(t *testing.T) {
		buf.Reset()
		logger.Warnf("warning %s", "test")

		entry := parseLogEntry(t, buf.Bytes())
		if entry.Message != "warning test" {
			t.Errorf("Expected formatted message, got %s", entry.Message)
		}
	})

	t.Run("Errorf", func(t *testing.T) {
		buf.Reset()
		logger.Errorf("error %v", "test")

		entry := parseLogEntry(t, buf.Bytes())
		if entry.Message != "error test" {
			t.Errorf("Expected formatted message, got %s", entry.Message)
		}
	})
}

func TestLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	t.Run("logs at the given level", func(t *testing.T) {
		buf.Reset()
		logger.Log(WarnLevel, "access line")

		entry := parseLogEntry(t, buf.Bytes())
		if entry.Level != "WARN" {
			t.Errorf("Expected level WARN, got %s", entry.Level)
		}
		if entry.Message != "access line" {
			t.Errorf("Expected message 'access line', got %s", entry.Message)
		}
	})

	t.Run("Logf formats the message", func(t *testing.T) {
		buf.Reset()
		logger.Logf(InfoLevel, "GET %s %d", "/preview/", 200)

		entry := parseLogEntry(t, buf.Bytes())
		if entry.Message != "GET /preview/ 200" {
			t.Errorf("Expected formatted message, got %s", entry.Message)
		}
	})

	t.Run("respects the logger level", func(t *testing.T) {
		var warnBuf bytes.Buffer
		warnLogger := NewLogger(WarnLevel, &warnBuf)
		warnLogger.Log(InfoLevel, "suppressed")
		if warnBuf.Len() > 0 {
			t.Error("Info-level line should be suppressed at Warn level")
		}
	})
}

func TestLogger_Timed(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	done := logger.Timed("resize image")
	done()

	entry := parseLogEntry(t, buf.Bytes())
	if entry.Message != "resize image completed" {
		t.Errorf("Expected message 'resize image completed', got %s", entry.Message)
	}
	if _, exists := entry.Fields["duration"]; !exists {
		t.Error("Expected duration field to exist")
	}
}

func TestContextHelpers(t *testing.T) {
	t.Run("RequestID", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithRequestID(ctx, "req-123")

		requestID := GetRequestID(ctx)
		if requestID != "req-123" {
			t.Errorf("Expected request ID 'req-123', got %s", requestID)
		}
	})

	t.Run("UserID", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithUserID(ctx, "user-456")

		userID := GetUserID(ctx)
		if userID != "user-456" {
			t.Errorf("Expected user ID 'user-456', got %s", userID)
		}
	})

	t.Run("Logger", func(t *testing.T) {
		ctx := context.Background()
		logger := NewLogger(InfoLevel, nil)
		ctx = WithLogger(ctx, logger)

		retrievedLogger := GetLogger(ctx)
		if retrievedLogger == nil {
			t.Error("Expected to retrieve logger from context")
		}
	})

	t.Run("FromContext", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(InfoLevel, &buf)

		ctx := context.Background()
		ctx = WithLogger(ctx, logger)
		ctx = WithRequestID(ctx, "req-123")
		ctx = WithUserID(ctx, "user-456")

		contextLogger := FromContext(ctx)
		contextLogger.Info("test message")

		entry := parseLogEntry(t, buf.Bytes())
		if entry.Fields["request_id"] != "req-123" {
			t.Errorf("Expected request_id 'req-123', got %v", entry.Fields["request_id"])
		}
		if entry.Fields["user_id"] != "user-456" {
			t.Errorf("Expected user_id 'user-456', got %v", entry.Fields["user_id"])
		}
	})
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
