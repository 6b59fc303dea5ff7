package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var (
	mu       sync.RWMutex
	minLevel = INFO
	output   io.Writer = os.Stderr
)

func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = level
}

func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return minLevel
}

// SetOutput redirects log output. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func DebugC(component, msg string) { logLine(DEBUG, component, msg, nil) }
func InfoC(component, msg string)  { logLine(INFO, component, msg, nil) }
func WarnC(component, msg string)  { logLine(WARN, component, msg, nil) }
func ErrorC(component, msg string) { logLine(ERROR, component, msg, nil) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	logLine(DEBUG, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	logLine(INFO, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	logLine(WARN, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	logLine(ERROR, component, msg, fields)
}

func logLine(level Level, component, msg string, fields map[string]interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if level < minLevel {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(levelNames[level])
	b.WriteString("] [")
	b.WriteString(component)
	b.WriteString("] ")
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	b.WriteString("\n")

	fmt.Fprint(output, b.String())
}
