package observability

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/triage-engine/internal/config"
)

func TestLoggerConfigByEnvironment(t *testing.T) {
	cases := []struct {
		env     string
		level   string
		dev     bool
		wantLvl zapcore.Level
	}{
		{env: "production", level: "warn", dev: false, wantLvl: zapcore.WarnLevel},
		{env: "staging", level: "", dev: false, wantLvl: zapcore.InfoLevel},
		{env: "Development", level: "DEBUG", dev: true, wantLvl: zapcore.DebugLevel},
		{env: "local", level: "nonsense", dev: true, wantLvl: zapcore.InfoLevel},
	}
	for _, tc := range cases {
		t.Run(tc.env, func(t *testing.T) {
			cfg := loggerConfig(config.AppConfig{Name: "triage-engine", Env: tc.env}, config.LoggerConfig{Level: tc.level})
			if cfg.Development != tc.dev {
				t.Errorf("Development = %v, want %v", cfg.Development, tc.dev)
			}
			if got := cfg.Level.Level(); got != tc.wantLvl {
				t.Errorf("level = %v, want %v", got, tc.wantLvl)
			}
			if cfg.InitialFields["env"] != tc.env {
				t.Errorf("env field = %v", cfg.InitialFields["env"])
			}
		})
	}
}

func TestNewLoggerProduction(t *testing.T) {
	logger, err := NewLogger(config.AppConfig{Name: "triage-engine", Env: "production"}, config.LoggerConfig{Level: "info"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled at info level")
	}
}
