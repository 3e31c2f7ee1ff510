package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	golog "github.com/ipfs/go-log/v2"
	"go.uber.org/zap/zapcore"
)

func TestSetupWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = "plain"
	cfg.File = filepath.Join(t.TempDir(), "rps.log")
	cfg.Compress = false

	closer, err := setup(cfg, zapcore.AddSync(&console))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	golog.Logger("logtest").Infow("game settled", "game", 7)
	golog.Logger("logtest").Debugw("hidden at info")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !strings.Contains(console.String(), "game settled") {
		t.Fatalf("console missing line: %q", console.String())
	}
	if strings.Contains(console.String(), "hidden at info") {
		t.Fatalf("debug line leaked at info level")
	}
	raw, err := os.ReadFile(cfg.File)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"game settled"`) {
		t.Fatalf("file is not json: %q", raw)
	}
}

func TestSubsystemLevelOverride(t *testing.T) {
	var console bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = "error"
	cfg.Subsystems = map[string]string{"chatty": "debug"}
	if _, err := setup(cfg, zapcore.AddSync(&console)); err != nil {
		t.Fatalf("setup: %v", err)
	}
	golog.Logger("chatty").Debugw("verbose detail")
	golog.Logger("quiet").Infow("suppressed")

	out := console.String()
	if !strings.Contains(out, "verbose detail") {
		t.Fatalf("subsystem override not applied: %q", out)
	}
	if strings.Contains(out, "suppressed") {
		t.Fatalf("default level not applied: %q", out)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"json", func(c *Config) { c.Format = "json" }, false},
		{"bad level", func(c *Config) { c.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Format = "xml" }, true},
		{"bad subsystem", func(c *Config) { c.Subsystems = map[string]string{"api": "nope"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
