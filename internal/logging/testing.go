package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry, down to TraceLevel, for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a TestLogger with no sampling or redaction.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message equals msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

func (t *TestLogger) find(level zapcore.Level, substr string) bool {
	for _, e := range t.observed.All() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// AssertLogged fails tb unless an entry at level contains substr.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	if !t.find(level, substr) {
		tb.Errorf("no %v entry containing %q in %d entries", level, substr, t.observed.Len())
	}
}

// AssertNotLogged fails tb if an entry at level contains substr.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	if t.find(level, substr) {
		tb.Errorf("unexpected %v entry containing %q", level, substr)
	}
}

// AssertField fails tb unless an entry with message msg carries key=want.
// String fields compare by value, others by their Interface payload.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.observed.FilterMessage(msg).All() {
		for _, f := range e.Context {
			if f.Key != key {
				continue
			}
			if f.Type == zapcore.StringType && f.String == want {
				return
			}
			if reflect.DeepEqual(f.Interface, want) {
				return
			}
		}
	}
	tb.Errorf("field %s=%v not found on %q", key, want, msg)
}

// AssertNoLocatorQuery fails tb if any string field still carries a URL
// query with an S3 signature.
func (t *TestLogger) AssertNoLocatorQuery(tb testing.TB) {
	tb.Helper()
	for _, e := range t.observed.All() {
		for _, f := range e.Context {
			if f.Type == zapcore.StringType && strings.Contains(strings.ToLower(f.String), "x-amz-signature=") {
				tb.Errorf("signed URL in field %q of %q", f.Key, e.Message)
			}
		}
	}
}
