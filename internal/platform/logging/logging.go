// Package logging builds the process logger: console or JSON on stdout plus a
// size-rotated pipeline.log.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FileName   = "pipeline.log"
	maxSizeMB  = 5
	maxBackups = 3
)

// Options controls where and how verbosely the logger writes.
type Options struct {
	Level   zerolog.Level
	Console bool   // human-readable stdout instead of JSON
	Dir     string // rotated file directory; empty disables the file
	Stdout  io.Writer
}

// New returns a logger and a closer for the rotated file.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}

	writers := []io.Writer{out}
	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return zerolog.Nop(), nil, err
		}
		file := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, FileName),
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
		}
		writers = append(writers, file)
		closer = file
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(opts.Level).
		With().
		Timestamp().
		Logger()
	logger.Debug().Msg("logger initialized")
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
