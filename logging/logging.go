// Package logging wires github.com/pingcap/log onto a
// gopkg.in/natefinch/lumberjack.v2-backed zap core for rotating file
// output, the way the teacher's raftnode-equivalent daemons configure
// logging (tinykv/tinysql both carry the same pingcap/log + lumberjack
// pairing in go.mod).
package logging

import (
	"os"

	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures rotating file output. A zero value (Filename
// empty) logs to stderr only.
type FileConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init replaces the global pingcap/log logger with one at the given
// level ("debug", "info", "warn", "error") that writes to stderr and,
// if file.Filename is set, additionally to a lumberjack-rotated file.
func Init(level string, file FileConfig) error {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl),
	}

	if file.Filename != "" {
		rotator := &lumberjack.Logger{
			Filename:   file.Filename,
			MaxSize:    nonZero(file.MaxSizeMB, 100),
			MaxBackups: nonZero(file.MaxBackups, 7),
			MaxAge:     nonZero(file.MaxAgeDays, 28),
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), lvl))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	log.ReplaceGlobals(logger, nil)
	return nil
}

func nonZero(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
