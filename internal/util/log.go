package util

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a stdout logger at the requested level.
func NewLogger(level string) zerolog.Logger {
	return newLogger(level, os.Stdout)
}

// NewFileLogger tees log output into a size-rotated file alongside stdout.
func NewFileLogger(level, path string) zerolog.Logger {
	if path == "" {
		return NewLogger(level)
	}
	rotated := &lumberjack.Logger{Filename: path, MaxSize: 50, MaxBackups: 5}
	return newLogger(level, io.MultiWriter(os.Stdout, rotated))
}

func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}
