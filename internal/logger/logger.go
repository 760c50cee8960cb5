package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "catalogsync.log"

// Logger wraps zerolog for application logging.
type Logger struct {
	zerolog.Logger
	rotator     *lumberjack.Logger
	broadcaster *LogBroadcaster
	filePath    string
}

// Config holds logger configuration.
type Config struct {
	Level           string
	Format          string // "console" or "json"
	Path            string // directory for log files
	MaxSizeMB       int    // max size in MB before rotation (default: 10)
	MaxBackups      int    // max number of old log files to keep (default: 5)
	MaxAgeDays      int    // max age in days to keep old files (default: 30)
	Compress        bool
	EnableStreaming bool // keep recent entries in memory for the logs endpoint
	BufferSize      int
}

// IsDevBuild returns true if running via "go run" (development mode).
func IsDevBuild() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}
	return strings.Contains(exe, "go-build")
}

// New creates a new logger instance.
// Dev builds log at debug level unless trace is configured.
func New(cfg Config) *Logger {
	var consoleOutput io.Writer

	if cfg.Format == "json" {
		consoleOutput = os.Stdout
	} else {
		consoleOutput = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	level := ParseLevel(cfg.Level)
	if IsDevBuild() && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	writers := []io.Writer{consoleOutput}
	l := &Logger{}

	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err == nil {
			l.filePath = filepath.Join(cfg.Path, logFileName)
			l.rotator = &lumberjack.Logger{
				Filename:   l.filePath,
				MaxSize:    positiveOr(cfg.MaxSizeMB, 10),
				MaxBackups: positiveOr(cfg.MaxBackups, 5),
				MaxAge:     positiveOr(cfg.MaxAgeDays, 30),
				Compress:   cfg.Compress,
				LocalTime:  true,
			}
			writers = append(writers, l.rotator)
		}
	}

	if cfg.EnableStreaming {
		l.broadcaster = NewLogBroadcaster(nil, cfg.BufferSize)
		writers = append(writers, l.broadcaster)
	}

	l.Logger = zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return l
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// Broadcaster returns the in-memory log broadcaster, or nil when streaming is disabled.
func (l *Logger) Broadcaster() *LogBroadcaster {
	return l.broadcaster
}

// GetRecentLogs returns buffered log entries.
func (l *Logger) GetRecentLogs() []LogEntry {
	if l.broadcaster == nil {
		return nil
	}
	return l.broadcaster.GetRecentLogs()
}

// GetLogFilePath returns the active log file path, empty when file logging is off.
func (l *Logger) GetLogFilePath() string {
	return l.filePath
}

// WithComponent returns a new logger with component field.
func (l *Logger) WithComponent(component string) zerolog.Logger {
	return l.Logger.With().Str("component", component).Logger()
}

// ParseLevel converts string level to zerolog.Level
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
