package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestLog_DefaultIsUsable(t *testing.T) {
	if Log == nil {
		t.Fatal("Log should never be nil")
	}
	Log.Infof("logging before Init should not panic: %d", 1)
}

func TestInit_ValidLevel(t *testing.T) {
	defer func() { Log = zap.NewNop().Sugar() }()

	if err := Init(Config{Level: "debug", Development: true}); err != nil {
		t.Fatalf("Init returned an error: %v", err)
	}
	if !Log.Desugar().Core().Enabled(zap.DebugLevel) {
		t.Error("Expected debug level to be enabled")
	}
}

func TestInit_DefaultLevelIsInfo(t *testing.T) {
	defer func() { Log = zap.NewNop().Sugar() }()

	if err := Init(Config{}); err != nil {
		t.Fatalf("Init returned an error: %v", err)
	}
	if Log.Desugar().Core().Enabled(zap.DebugLevel) {
		t.Error("Debug should be disabled at the default level")
	}
	if !Log.Desugar().Core().Enabled(zap.InfoLevel) {
		t.Error("Info should be enabled at the default level")
	}
}

func TestInit_InvalidLevel(t *testing.T) {
	before := Log
	if err := Init(Config{Level: "chatty"}); err == nil {
		t.Fatal("Expected an error for an unknown level")
	}
	if Log != before {
		t.Error("Log should be left untouched when Init fails")
	}
}
