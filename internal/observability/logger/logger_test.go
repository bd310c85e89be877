package logger

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v want %v", in, got, want)
		}
	}
}

func TestFrom_FallsBackAndScopes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(core))
	defer restore()

	From(context.Background()).Info("root")
	scoped := L().With(RequestID("r1"), CallingApp("com.example"))
	ctx := ToContext(context.Background(), scoped)
	From(ctx).Info("scoped")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	fields := entries[1].ContextMap()
	if fields["request_id"] != "r1" || fields["calling_app"] != "com.example" {
		t.Fatalf("missing scoped fields: %v", fields)
	}
}

func TestBuild_ReportsDirectCaller(t *testing.T) {
	for _, env := range []string{"dev", "prod"} {
		var caller zapcore.EntryCaller
		l := build(Config{Env: env, Level: "debug"}).WithOptions(zap.Hooks(func(e zapcore.Entry) error {
			caller = e.Caller
			return nil
		}))
		l.Debug("caller check")

		if !caller.Defined || filepath.Base(caller.File) != "logger_test.go" {
			t.Fatalf("%s: caller = %s, want logger_test.go", env, caller.TrimmedPath())
		}
	}
}
