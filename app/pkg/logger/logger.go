package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	sugared = zap.NewNop().Sugar()
	logFile *os.File
)

// Init routes log output to stdout and a daily file under logDir. An empty
// logDir logs to stdout only.
func Init(logDir string) error {
	return InitWithLevel(logDir, "info")
}

func InitWithLevel(logDir string, level string) error {
	return initLogger(logDir, level, true)
}

// InitFileOnly logs to the daily file alone, leaving stdout to an
// interactive session.
func InitFileOnly(logDir string, level string) error {
	return initLogger(logDir, level, false)
}

func initLogger(logDir string, level string, console bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var sinks []zapcore.WriteSyncer
	if console {
		sinks = append(sinks, zapcore.AddSync(os.Stdout))
	}
	var f *os.File
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return err
		}
		path := filepath.Join(logDir, fmt.Sprintf("taskmate_%s.log", time.Now().Format("2006-01-02")))
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		sinks = append(sinks, zapcore.AddSync(f))
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.NewMultiWriteSyncer(sinks...), lvl)
	replace(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)), f)
	return nil
}

// Use installs l as the package logger. Tests use it with zaptest or
// observer cores.
func Use(l *zap.Logger) {
	replace(l, nil)
}

func replace(l *zap.Logger, f *os.File) {
	mu.Lock()
	defer mu.Unlock()
	_ = sugared.Sync()
	if logFile != nil {
		_ = logFile.Close()
	}
	sugared = l.Sugar()
	logFile = f
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugared
}

func Info(format string, v ...interface{}) {
	current().Infof(format, v...)
}

func Warn(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

func Error(format string, v ...interface{}) {
	current().Errorf(format, v...)
}

func Sync() {
	_ = current().Sync()
}
