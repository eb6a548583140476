package common

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// GetLogger returns the global logger instance. If SetupLogger hasn't run
// yet a fallback console logger is installed.
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		defer loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(writerConfig(nil, models.LogWriterTypeConsole, ""))
	}
	return globalLogger
}

// InitLogger stores the provided logger as the global singleton instance.
func InitLogger(logger arbor.ILogger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	globalLogger = logger
}

// SetupLogger configures the global logger from config: console and/or file
// writers, level, time format.
func SetupLogger(config *Config) arbor.ILogger {
	logger := arbor.NewLogger()

	hasFile := false
	hasConsole := false
	for _, output := range config.Logging.Output {
		switch output {
		case "file":
			hasFile = true
		case "stdout", "console":
			hasConsole = true
		}
	}

	if hasFile {
		execPath, err := os.Executable()
		if err != nil {
			logger = logger.WithConsoleWriter(writerConfig(config, models.LogWriterTypeConsole, ""))
			logger.Warn().Err(err).Msg("Failed to resolve executable path - file logging disabled")
			hasConsole = false // console writer already attached
		} else {
			logsDir := filepath.Join(filepath.Dir(execPath), "logs")
			if err := os.MkdirAll(logsDir, 0o755); err != nil {
				logger.Warn().Err(err).Str("logs_dir", logsDir).Msg("Failed to create logs directory")
			} else {
				logFile := filepath.Join(logsDir, "loom.log")
				logger = logger.WithFileWriter(writerConfig(config, models.LogWriterTypeFile, logFile))
			}
		}
	}

	if hasConsole {
		logger = logger.WithConsoleWriter(writerConfig(config, models.LogWriterTypeConsole, ""))
	}

	logger = logger.WithLevelFromString(config.Logging.Level)

	InitLogger(logger)
	return logger
}

func writerConfig(config *Config, writerType models.LogWriterType, filename string) models.WriterConfiguration {
	timeFormat := "15:04:05.000"
	if config != nil && config.Logging.TimeFormat != "" {
		timeFormat = config.Logging.TimeFormat
	}
	return models.WriterConfiguration{
		Type:       writerType,
		FileName:   filename,
		TimeFormat: timeFormat,
		MaxSize:    100 * 1024 * 1024,
		MaxBackups: 3,
	}
}
