//go:build release

package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dixieflatline76/Placement/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Release builds start with debug output off; LOG_LEVEL=debug turns it on.
var debugEnabled atomic.Bool

func init() {
	log.SetFlags(log.LstdFlags | log.LUTC)

	// Containers collect stderr. A rotating file is added only when LOG_DIR is set.
	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		return
	}
	if err := os.MkdirAll(filepath.Join(logDir, config.LogSubDir), 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   filepath.Join(logDir, config.LogSubDir, config.AppName+config.LogExt),
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}))
}

// SetDebug turns [DEBUG] output on or off.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// Print calls the standard log.Print()
func Print(v ...interface{}) {
	log.Output(2, fmt.Sprint(v...))
}

// Printf calls the standard log.Printf()
func Printf(format string, v ...interface{}) {
	log.Output(2, fmt.Sprintf(format, v...))
}

// Println calls the standard log.Println()
func Println(v ...interface{}) {
	log.Output(2, fmt.Sprintln(v...))
}

// Fatal logs and exits with status 1.
func Fatal(v ...interface{}) {
	log.Output(2, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs and exits with status 1.
func Fatalf(format string, v ...interface{}) {
	log.Output(2, fmt.Sprintf(format, v...))
	os.Exit(1)
}

// Fatalln logs and exits with status 1.
func Fatalln(v ...interface{}) {
	log.Output(2, fmt.Sprintln(v...))
	os.Exit(1)
}

// Debug logs with a [DEBUG] prefix when debug output is on.
func Debug(v ...interface{}) {
	if debugEnabled.Load() {
		log.Output(2, "[DEBUG] "+fmt.Sprint(v...))
	}
}

// Debugf logs with a [DEBUG] prefix when debug output is on.
func Debugf(format string, v ...interface{}) {
	if debugEnabled.Load() {
		log.Output(2, "[DEBUG] "+fmt.Sprintf(format, v...))
	}
}
