// Package logx is the logging collaborator for the dispatch engine.
//
// A Logger is constructed explicitly and handed to the engine; there is no
// shared global state and no lazy first-writer-sets-path behavior. Each
// logger owns one timestamped file under its logging root plus a console
// sink, and rolls to a fresh file when a size threshold is crossed. The
// verbosity toggle switches between INFO-only output and DEBUG output with
// endpoint entry/exit tracing.
package logx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileStamp is the layout for log file names: <app>_<stamp>.log in UTC.
const fileStamp = "2006-01-02_15_04_05"

// Config configures a Logger.
type Config struct {
	// Dir is the logging root. Created if missing. Default "log".
	Dir string

	// AppName prefixes log file names. Default "server".
	AppName string

	// Verbose switches the logger to DEBUG level and enables endpoint
	// entry/exit tracing.
	Verbose bool

	// MaxFileBytes rolls the log to a fresh timestamped file once the
	// current file would exceed this size. Zero disables rollover.
	MaxFileBytes int64

	// Console is the secondary sink. Default os.Stderr.
	Console io.Writer
}

// Logger writes structured records to a file under its logging root and to
// the console. Safe for concurrent use; writes are serialized here so the
// dispatch engine never has to.
type Logger struct {
	slog    *slog.Logger
	verbose bool
	dir     string
	app     string
	max     int64
	console io.Writer

	mu   sync.Mutex
	file *os.File
	size int64
	seq  int
}

// New creates the logging root if needed, opens a fresh timestamped log
// file, and returns a ready logger.
func New(cfg Config) (*Logger, error) {
	if cfg.Dir == "" {
		cfg.Dir = "log"
	}
	if cfg.AppName == "" {
		cfg.AppName = "server"
	}
	if cfg.Console == nil {
		cfg.Console = os.Stderr
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("logx: create log dir: %w", err)
	}

	l := &Logger{
		verbose: cfg.Verbose,
		dir:     cfg.Dir,
		app:     cfg.AppName,
		max:     cfg.MaxFileBytes,
		console: cfg.Console,
	}
	if err := l.open(); err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	l.slog = slog.New(slog.NewTextHandler(l, &slog.HandlerOptions{Level: level}))
	return l, nil
}

// open creates the next timestamped log file. Caller holds no lock during
// New; rollover calls it with l.mu held.
func (l *Logger) open() error {
	name := fmt.Sprintf("%s_%s.log", l.app, time.Now().UTC().Format(fileStamp))
	path := filepath.Join(l.dir, name)
	// Rollover within the stamp's resolution must not reopen the file we
	// are rolling away from.
	if l.file != nil && path == l.file.Name() {
		l.seq++
		path = filepath.Join(l.dir, fmt.Sprintf("%s_%s_%d.log", l.app, time.Now().UTC().Format(fileStamp), l.seq))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logx: open log file: %w", err)
	}
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	l.size = 0
	if info, err := f.Stat(); err == nil {
		l.size = info.Size()
	}
	return nil
}

// Write sends one formatted record to the file and console sinks, rolling
// the file first when the size threshold would be crossed. It makes Logger
// an io.Writer so the slog handler drives it directly.
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	if l.max > 0 && l.size+int64(len(p)) > l.max && l.size > 0 {
		if err := l.open(); err != nil {
			l.mu.Unlock()
			return 0, err
		}
	}
	n, err := l.file.Write(p)
	l.size += int64(n)
	l.mu.Unlock()

	if l.console != nil {
		l.console.Write(p)
	}
	return n, err
}

// Log emits a record at an arbitrary level.
func (l *Logger) Log(level slog.Level, msg string, args ...any) {
	l.slog.Log(context.Background(), level, msg, args...)
}

// Debug emits a DEBUG record.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info emits an INFO record.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn emits a WARN record.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error emits an ERROR record.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// TraceEnter records entry into an endpoint with its bound arguments.
// Emitted only when the logger is verbose.
func (l *Logger) TraceEnter(route string, args map[string]any) {
	if !l.verbose {
		return
	}
	l.slog.Debug("entering endpoint", "route", route, "args", fmt.Sprintf("%v", args))
}

// TraceExit records exit from an endpoint. Emitted only when verbose.
func (l *Logger) TraceExit(route string) {
	if !l.verbose {
		return
	}
	l.slog.Debug("exiting endpoint", "route", route)
}

// Verbose reports whether tracing output is enabled.
func (l *Logger) Verbose() bool { return l.verbose }

// Dir returns the logging root.
func (l *Logger) Dir() string { return l.dir }

// CurrentFile returns the path of the file currently being written.
func (l *Logger) CurrentFile() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Name()
}

// Close releases the current log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
