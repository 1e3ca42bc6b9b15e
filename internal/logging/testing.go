package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewTestLogger returns a Logger that writes through the test's log output.
// Entries appear only when the test fails or -v is set.
func NewTestLogger(t *testing.T) *Logger {
	return &Logger{
		zap:    zaptest.NewLogger(t),
		config: NewDefaultConfig(),
	}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{
		zap:    zap.NewNop(),
		config: NewDefaultConfig(),
	}
}
