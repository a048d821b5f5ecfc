// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Thermoquad/dmxstat/internal/config"
)

// ParseLevel maps a config level name to a zap level, defaulting to info
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger builds the process logger. Console output goes to stderr unless
// console is false (the TUI owns the terminal); a rotating file is added when
// cfg.File.Filename is set. Every entry carries the run_id of this process.
func InitLogger(cfg config.LoggingConfig, console bool) (*zap.Logger, error) {
	return newLogger(cfg, console, os.Stderr)
}

func newLogger(cfg config.LoggingConfig, console bool, stderr io.Writer) (*zap.Logger, error) {
	level := ParseLevel(cfg.Level)

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var sinks []zapcore.WriteSyncer
	if console {
		sinks = append(sinks, zapcore.AddSync(stderr))
	}
	if cfg.File.Filename != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}))
	}
	if len(sinks) == 0 {
		return zap.NewNop(), nil
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	logger := zap.New(core, zap.AddCaller()).With(zap.String("run_id", uuid.NewString()))
	return logger, nil
}
