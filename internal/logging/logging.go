// Package logging configures the server's zerolog logger from
// internal/config.Config, matching the multi-writer, reopenable-file-handle
// logging setup used throughout the r2northstar tooling.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/northlane-net/netcode/internal/config"
)

// writerLevel wraps an io.Writer (or zerolog.LevelWriter) with a minimum
// level, and allows the underlying writer to be swapped out (e.g. on SIGHUP,
// to reopen a log file).
type writerLevel struct {
	w io.Writer
	l zerolog.Level
	m sync.Mutex
}

var _ zerolog.LevelWriter = (*writerLevel)(nil)

func newWriterLevel(w io.Writer, l zerolog.Level) *writerLevel {
	return &writerLevel{w: w, l: l}
}

func (wl *writerLevel) Write(p []byte) (n int, err error) {
	wl.m.Lock()
	defer wl.m.Unlock()
	if wl.w != nil {
		return wl.w.Write(p)
	}
	return len(p), nil
}

func (wl *writerLevel) WriteLevel(l zerolog.Level, p []byte) (n int, err error) {
	if l >= wl.l {
		wl.m.Lock()
		defer wl.m.Unlock()
		if wl.w != nil {
			if lw, ok := wl.w.(zerolog.LevelWriter); ok {
				return lw.WriteLevel(l, p)
			}
			return wl.w.Write(p)
		}
	}
	return len(p), nil
}

func (wl *writerLevel) SwapWriter(fn func(io.Writer) io.Writer) {
	wl.m.Lock()
	defer wl.m.Unlock()
	wl.w = fn(wl.w)
}

// Configure builds a logger from c, returning a reopen function that should
// be called on SIGHUP to reopen the log file (if configured).
func Configure(c *config.Config) (l zerolog.Logger, reopen func(), err error) {
	var outputs []io.Writer
	if c.LogStdout {
		if c.LogStdoutPretty {
			outputs = append(outputs, newWriterLevel(zerolog.ConsoleWriter{Out: os.Stdout}, c.LogLevel))
		} else {
			outputs = append(outputs, newWriterLevel(os.Stdout, c.LogLevel))
		}
	}
	if fn := c.LogFile; fn != "" {
		x := newWriterLevel(nil, c.LogLevel)
		if fn, err = filepath.Abs(fn); err != nil {
			err = fmt.Errorf("resolve log file: %w", err)
			return
		}
		reopen = func() {
			x.SwapWriter(func(old io.Writer) io.Writer {
				if o, ok := old.(io.Closer); ok {
					o.Close()
				}
				if f, ferr := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666); ferr == nil {
					return f
				} else {
					fmt.Fprintf(os.Stderr, "error: failed to open log file: %v\n", ferr)
				}
				return nil
			})
		}
		outputs = append(outputs, x)
		reopen()
	}
	if reopen == nil {
		reopen = func() {}
	}

	l = zerolog.New(zerolog.MultiLevelWriter(outputs...)).
		Level(c.LogLevel).
		With().
		Timestamp().
		Logger()
	return
}
