// Package logger provides namespaced debug loggers for internal tracing.
// Loggers are silent unless enabled through the A5C_DEBUG environment
// variable, which accepts a comma-separated list of namespace globs
// (e.g. "resources:*,trigger:engine"). "*" or "1" enables everything.
package logger

import (
	"log"
	"os"
	"strings"
	"sync"
)

// Logger is a namespaced debug logger. The zero value is unusable; construct
// with New.
type Logger struct {
	name    string
	enabled bool
	l       *log.Logger
}

var (
	patternsOnce sync.Once
	patterns     []string
)

func debugPatterns() []string {
	patternsOnce.Do(func() {
		spec := os.Getenv("A5C_DEBUG")
		if spec == "" {
			return
		}
		for _, p := range strings.Split(spec, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				patterns = append(patterns, p)
			}
		}
	})
	return patterns
}

func matchesPattern(name, pattern string) bool {
	if pattern == "*" || pattern == "1" {
		return true
	}
	if suffix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(name, suffix)
	}
	return name == pattern
}

// New creates a logger for the given namespace, conventionally "pkg:file".
func New(name string) *Logger {
	enabled := false
	for _, p := range debugPatterns() {
		if matchesPattern(name, p) {
			enabled = true
			break
		}
	}
	return &Logger{
		name:    name,
		enabled: enabled,
		l:       log.New(os.Stderr, "["+name+"] ", log.Ltime|log.Lmicroseconds),
	}
}

// Printf logs a formatted message when the namespace is enabled.
func (lg *Logger) Printf(format string, args ...any) {
	if lg.enabled {
		lg.l.Printf(format, args...)
	}
}

// Print logs a message when the namespace is enabled.
func (lg *Logger) Print(args ...any) {
	if lg.enabled {
		lg.l.Print(args...)
	}
}

// Enabled reports whether the logger emits output.
func (lg *Logger) Enabled() bool {
	return lg.enabled
}
