package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

var logFile *lumberjack.Logger

// Setup initializes the logging system: slog text output to stdout plus a
// rotating log file.
func Setup(logPath string, debug bool) error {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile = &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   false,
	}

	var writers []io.Writer
	writers = append(writers, logFile)

	if fileInfo, _ := os.Stdout.Stat(); fileInfo != nil {
		writers = append(writers, os.Stdout)
	}

	multiWriter := io.MultiWriter(writers...)

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(multiWriter, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	// Redirect the standard log package to the same writers
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	slog.Info("logging initialized", "path", logPath, "debug", debug)

	return nil
}

// Close closes the log file
func Close() {
	if logFile != nil {
		slog.Info("logging shutdown")
		if err := logFile.Close(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}
}

// DefaultLogPath returns the log file path next to the executable.
func DefaultLogPath() string {
	exePath, err := os.Executable()
	if err != nil {
		return filepath.Join(".", "logs", "clipdeck.log")
	}
	return filepath.Join(filepath.Dir(exePath), "logs", "clipdeck.log")
}
