// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type SetupParams struct {
	LogFileName   string
	LogToStdout   bool
	LogLevel      string
	LogFormatJSON bool
	// MaxSizeMB rotates the file once it grows past this size. Zero means 10.
	MaxSizeMB  int
	MaxBackups int
}

// Setup points logrus at the configured outputs. The returned closer releases
// the log file; it is safe to call when no file was opened.
func Setup(params SetupParams) io.Closer {
	if params.LogFormatJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	logrus.SetLevel(GetLevel(params.LogLevel))

	if params.LogFileName == "" {
		if params.LogToStdout {
			logrus.SetOutput(os.Stdout)
		} else {
			logrus.SetOutput(io.Discard)
		}
		return nopCloser{}
	}

	if !strings.HasSuffix(params.LogFileName, ".log") {
		params.LogFileName += ".log"
	}
	if err := os.MkdirAll(filepath.Dir(params.LogFileName), 0o755); err != nil {
		logrus.SetOutput(os.Stderr)
		logrus.Errorf("failed to create log dir: %s", err)
		return nopCloser{}
	}

	maxSize := params.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	lumberJackLogger := &lumberjack.Logger{
		Filename:   params.LogFileName,
		MaxSize:    maxSize, // megabytes
		MaxBackups: params.MaxBackups,
		Compress:   true,
	}

	if params.LogToStdout {
		logrus.SetOutput(NewCombinedWriter(os.Stdout, lumberJackLogger))
	} else {
		logrus.SetOutput(lumberJackLogger)
	}
	return lumberJackLogger
}

// GetLevel parses a level name; unknown names fall back to info.
func GetLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "trace":
		return logrus.TraceLevel
	case "warn", "warning":
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
