package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func contextFields(entry observer.LoggedEntry) map[string]interface{} {
	fields := map[string]interface{}{}
	for _, field := range entry.Context {
		fields[field.Key] = field.Interface
		if field.Type == zapcore.StringType {
			fields[field.Key] = field.String
		}
	}
	return fields
}

func TestSessionLoggerAddsFields(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	Use(zap.New(core))
	traceID.Store("")

	SetTraceID("trace-123")
	Session("sess-1").Infow("unit emitted", "generation", 2)

	logs := recorded.All()
	if len(logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(logs))
	}

	fields := contextFields(logs[0])
	if fields["trace_id"] != "trace-123" {
		t.Fatalf("expected trace_id to be trace-123, got %v", fields["trace_id"])
	}
	if fields["session_id"] != "sess-1" {
		t.Fatalf("expected session_id to be sess-1, got %v", fields["session_id"])
	}
}

func TestPackageLevelUsesUnknownTrace(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))
	traceID.Store("")

	Warnf("hello %d", 1)

	logs := recorded.All()
	if len(logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(logs))
	}
	if logs[0].Message != "hello 1" {
		t.Fatalf("unexpected message %q", logs[0].Message)
	}
	if contextFields(logs[0])["trace_id"] != "trace-unknown" {
		t.Fatalf("expected default trace id")
	}
}

func TestInitRejectsUnknownFormat(t *testing.T) {
	if err := Init(Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for invalid format")
	}
	if err := Init(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}
