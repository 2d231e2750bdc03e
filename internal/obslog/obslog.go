// Package obslog provides the structured JSON logging helper shared by the
// core packages and by pkg/middleware's request logger: a bracketed
// level tag followed by a single JSON object, written via the standard log
// package so callers can redirect output with log.SetOutput as usual.
package obslog

import (
	"encoding/json"
	"log"
	"time"
)

// Fields is a bag of structured log attributes.
type Fields map[string]interface{}

func emit(level string, message string, fields Fields) {
	entry := Fields{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"message":   message,
	}
	for k, v := range fields {
		entry[k] = v
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[%s] %s (fields unmarshalable: %v)", level, message, err)
		return
	}
	log.Printf("[%s] %s", level, string(data))
}

// Warn logs a recoverable condition: redirect, timeout, stale-serve, write failure.
func Warn(message string, fields Fields) { emit("WARN", message, fields) }

// Error logs a hard failure: decrypt failure, storage corruption.
func Error(message string, fields Fields) { emit("ERROR", message, fields) }

// Info logs routine, successful operations.
func Info(message string, fields Fields) { emit("INFO", message, fields) }
