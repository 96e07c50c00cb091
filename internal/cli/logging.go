package cli

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"vizmigrate/internal/config"
	"vizmigrate/pkg/types"
)

func setupLogging(cfg *types.Config) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Set log level from env, then config, default to Info
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = cfg.Processing.LogLevel
		if level == "" {
			level = "info"
		}
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("Invalid log level '%s', defaulting to 'info'", level)
		logLevel = logrus.InfoLevel
	}
	logrus.SetLevel(logLevel)

	logPath := cfg.Processing.LogPath
	if logPath == "" {
		logPath = config.DefaultLogPath
	}

	// Resolve relative paths to working directory
	if !filepath.IsAbs(logPath) {
		wd, err := os.Getwd()
		if err != nil {
			logrus.Warnf("Failed to get working directory: %v, logging to stderr", err)
			return
		}
		logPath = filepath.Join(wd, logPath)
	}
	cfg.Processing.LogPath = logPath

	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		logrus.Warnf("Failed to create log directory %s: %v, logging to stderr", logDir, err)
		return
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logrus.Warnf("Failed to open log file %s: %v, logging to stderr", logPath, err)
		return
	}

	// All structured logs go to the file so stdout keeps only the PROGRESS,
	// FINAL and summary lines, and stderr the spinner.
	logrus.SetOutput(logFile)
	logrus.Infof("Logging to file: %s", logPath)
}
