// Package logging wires go-log subsystem loggers to the console and, when a
// file is configured, to a size-rotated log file.
package logging

import (
	"io"
	"os"
	"strings"

	golog "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, console format and the optional rotating file sink.
type Config struct {
	Level      string            `toml:"level" json:"level"`
	Format     string            `toml:"format" json:"format"` // color, plain or json
	File       string            `toml:"file" json:"file,omitempty"`
	MaxSizeMB  int               `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int               `toml:"max_backups" json:"max_backups"`
	MaxAgeDays int               `toml:"max_age_days" json:"max_age_days"`
	Compress   bool              `toml:"compress" json:"compress"`
	Subsystems map[string]string `toml:"subsystems" json:"subsystems,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "color",
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

// ParseFormat maps a format name onto a go-log output format.
func ParseFormat(s string) (golog.LogFormat, error) {
	switch strings.ToLower(s) {
	case "", "color", "colour", "colorized":
		return golog.ColorizedOutput, nil
	case "plain", "text", "plaintext":
		return golog.PlaintextOutput, nil
	case "json":
		return golog.JSONOutput, nil
	}
	return 0, errors.Errorf("logging: unknown format %q", s)
}

// Validate checks the level, format and per-subsystem levels.
func (c Config) Validate() error {
	if _, err := golog.LevelFromString(c.Level); err != nil {
		return errors.Wrapf(err, "logging: level %q", c.Level)
	}
	if _, err := ParseFormat(c.Format); err != nil {
		return err
	}
	for name, lvl := range c.Subsystems {
		if _, err := golog.LevelFromString(lvl); err != nil {
			return errors.Wrapf(err, "logging: level %q for %s", lvl, name)
		}
	}
	return nil
}

// Setup installs the configured cores as the go-log primary core. The
// returned closer flushes and closes the rotating file, if any.
func Setup(cfg Config) (io.Closer, error) {
	return setup(cfg, os.Stderr)
}

func setup(cfg Config, console zapcore.WriteSyncer) (io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := golog.LevelFromString(cfg.Level)
	format, _ := ParseFormat(cfg.Format)

	cores := []zapcore.Core{newCore(format, console)}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotate := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		cores = append(cores, newCore(golog.JSONOutput, zapcore.AddSync(rotate)))
		closer = rotate
	}

	subsystems := make(map[string]golog.LogLevel, len(cfg.Subsystems))
	for name, lvl := range cfg.Subsystems {
		subsystems[name], _ = golog.LevelFromString(lvl)
	}
	// SetupLogging records the default and per-subsystem levels, including
	// for loggers created later. Its own sink is empty and replaced below.
	golog.SetupLogging(golog.Config{
		Format:          format,
		Level:           level,
		SubsystemLevels: subsystems,
	})
	golog.SetPrimaryCore(zapcore.NewTee(cores...))
	return closer, nil
}

// newCore mirrors go-log's own encoder settings so console and file lines
// look alike. The core logs everything; per-subsystem levels filter earlier.
func newCore(format golog.LogFormat, ws zapcore.WriteSyncer) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch format {
	case golog.PlaintextOutput:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case golog.JSONOutput:
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, zapcore.Lock(ws), zap.NewAtomicLevelAt(zapcore.DebugLevel))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
