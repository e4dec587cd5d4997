// Package logging holds the process-wide slog handle. Drivers and the bridge
// log through L() so reconfiguration applies everywhere at once.
package logging

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// L returns the current process logger. Safe for concurrent use; the returned
// logger stays valid after a later Setup swaps the handle.
func L() *slog.Logger {
	return current.Load()
}

// Setup replaces the process logger. level is one of debug, info, warn, error
// (anything else falls back to info); json selects the JSON handler over the
// default text one.
func Setup(level string, json bool) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if json {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	current.Store(slog.New(h))
}

// InitFromEnv configures logging from KBRIDGE_LOG_LEVEL and KBRIDGE_LOG_JSON.
// Unset or malformed values keep the defaults.
func InitFromEnv() {
	json, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("KBRIDGE_LOG_JSON")))
	Setup(os.Getenv("KBRIDGE_LOG_LEVEL"), json)
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
