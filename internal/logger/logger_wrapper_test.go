package logger

import (
	"errors"
	"testing"

	"github.com/leandrodaf/trackmix/sdk/contracts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (contracts.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewZapLoggerWith(zap.New(core)), logs
}

func TestZapLogger_TypedFields(t *testing.T) {
	log, logs := newObserved()

	log.Warn("play suppressed",
		log.Field().Int("slot", 3),
		log.Field().Error("error", errors.New("boom")),
		log.Field().String("kind", "video"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["slot"] != int64(3) {
		t.Errorf("slot = %v, want 3", ctx["slot"])
	}
	if ctx["kind"] != "video" {
		t.Errorf("kind = %v, want video", ctx["kind"])
	}
	if ctx["error"] != "boom" {
		t.Errorf("error = %v, want boom", ctx["error"])
	}
}

func TestZapLogger_SetLevelFilters(t *testing.T) {
	log, logs := newObserved()
	log.SetLevel(contracts.WarnLevel)

	log.Debug("tick")
	log.Info("started")
	log.Warn("late")
	log.Error("failed")

	if got := logs.Len(); got != 2 {
		t.Errorf("got %d entries, want 2 (warn and error)", got)
	}
}

func TestZapLogger_NamedSharesLevel(t *testing.T) {
	log, logs := newObserved()
	child := log.Named("clock")

	log.SetLevel(contracts.ErrorLevel)
	child.Warn("dropped")
	child.Error("kept")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].LoggerName != "clock" {
		t.Errorf("logger name = %q, want clock", entries[0].LoggerName)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]contracts.LogLevel{
		"debug":   contracts.DebugLevel,
		"warn":    contracts.WarnLevel,
		"error":   contracts.ErrorLevel,
		"":        contracts.InfoLevel,
		"verbose": contracts.InfoLevel,
	}
	for in, want := range tests {
		if got := contracts.ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
