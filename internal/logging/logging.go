// Package logging configures the shared logrus instance used by every sysward
// package. Setup happens in two phases: a stdout-only base logger available
// before the configuration file has been read, and a reconfiguration step that
// applies the validated log level and switches output to a rotating file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	setupOnce sync.Once
	writerMu  sync.Mutex
	logWriter *lumberjack.Logger
)

// Formatter renders entries as single timestamped lines:
// [2026-08-29 14:03:11] [warn ] [engine.go:142] disk usage 91.2% exceeds threshold 85.0% | domain=disk
type Formatter struct{}

// Format renders a single log entry.
func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	var b strings.Builder
	if entry.Caller != nil {
		fmt.Fprintf(&b, "[%s] [%-5s] [%s:%d] %s", timestamp, level,
			filepath.Base(entry.Caller.File), entry.Caller.Line, message)
	} else {
		fmt.Fprintf(&b, "[%s] [%-5s] %s", timestamp, level, message)
	}

	if len(entry.Data) > 0 {
		b.WriteString(" |")
		first := true
		for k, v := range entry.Data {
			if !first {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " %s=%v", k, v)
			first = false
		}
	}
	b.WriteString("\n")
	return []byte(b.String()), nil
}

// SetupBase configures the shared logrus instance for stdout output and routes
// Gin's writers through it. Safe to call multiple times; initialization
// happens only once.
func SetupBase() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&Formatter{})
		log.SetLevel(log.InfoLevel)

		gin.DefaultWriter = log.StandardLogger().Writer()
		gin.DefaultErrorWriter = log.StandardLogger().WriterLevel(log.ErrorLevel)
		gin.DebugPrintFunc = func(format string, values ...interface{}) {
			log.StandardLogger().Debugf(strings.TrimRight(format, "\r\n"), values...)
		}

		log.RegisterExitHandler(closeLogOutput)
	})
}

// Configure applies the validated log level and, when logFile is non-empty,
// switches output to a rotating file (10 MB per file, 5 backups). Returns an
// error only when the log directory cannot be created.
func Configure(level, logFile string) error {
	SetupBase()

	parsed, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)

	writerMu.Lock()
	defer writerMu.Unlock()

	if logFile == "" {
		if logWriter != nil {
			_ = logWriter.Close()
			logWriter = nil
		}
		log.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return fmt.Errorf("logging: create log directory: %w", err)
	}
	if logWriter != nil {
		_ = logWriter.Close()
	}
	logWriter = &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10,
		MaxBackups: 5,
		Compress:   false,
	}
	// Keep stdout in the fan-out so journald/systemd still captures everything.
	log.SetOutput(io.MultiWriter(os.Stdout, logWriter))
	return nil
}

func closeLogOutput() {
	writerMu.Lock()
	defer writerMu.Unlock()
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}

// FallbackRecord appends a timestamped line to a crash file under the OS temp
// directory. Used for faults that occur before logging is usable or while it
// is failing; errors here are ignored since there is nowhere left to report.
func FallbackRecord(message string) {
	path := filepath.Join(os.TempDir(), "sysward_critical_error.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", time.Now().Format(time.RFC3339), message)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s: %s\n", time.Now().Format(time.RFC3339), message)
}
