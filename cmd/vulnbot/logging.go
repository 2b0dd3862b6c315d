package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger はログ出力先を決めて zap.Logger を作る。
// file が空なら stderr。TUI モードでは画面を壊さないよう file に書く。
func newLogger(verbose bool, level, file string) (*zap.Logger, error) {
	var zc zap.Config
	if verbose {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
		zc.Sampling = nil
	}

	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		zc.OutputPaths = []string{file}
		zc.ErrorOutputPaths = []string{file}
	}
	return zc.Build()
}

// fileLogger は TUI 用のファイルロガーを作る。作れなければ何も出力しない。
func fileLogger() *zap.Logger {
	l, err := newLogger(verbose, cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return zap.NewNop()
	}
	return l
}
