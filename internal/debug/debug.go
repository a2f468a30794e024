package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (session start/stop, captures)
	LevelLive    = 2 // Live info (zoom ticks, exposure changes, focus taps)
	LevelVerbose = 3 // Verbose (transactions, capability checks)
	LevelTrace   = 4 // Trace (device lock, GPIO, very low level)
)

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stdout
	logger *slog.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (session lifecycle, capture results)
// 2 = live info (gesture-driven parameter changes)
// 3 = verbose (configuration transactions, overlay recomputation)
// 4 = trace (device lock, GPIO)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	rebuild()
}

// SetOutput redirects log output (e.g. to also feed the web event stream).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

func rebuild() {
	if level <= LevelOff {
		logger = nil
		return
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With("app", "camctl")
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// Logger returns a slog.Logger for components that take one by injection.
// It discards everything while debug output is off.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}

func emit(minLevel int, sl slog.Level, tag, msg string, attrs ...any) {
	mu.RLock()
	l, lv := logger, level
	mu.RUnlock()
	if l == nil || lv < minLevel {
		return
	}
	l.Log(context.Background(), sl, msg, append([]any{"tag", tag}, attrs...)...)
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...any) {
	emit(LevelInfo, slog.LevelInfo, "INFO", fmt.Sprintf(format, args...))
}

// Value prints a named value (level 1).
func Value(name string, value any) {
	emit(LevelInfo, slog.LevelInfo, "INFO", name, "value", value)
}

// Error prints a debug error (level 1+).
func Error(err error) {
	if err == nil {
		return
	}
	emit(LevelInfo, slog.LevelError, "ERROR", err.Error())
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...any) {
	emit(LevelLive, slog.LevelInfo, "LIVE", fmt.Sprintf(format, args...))
}

// Param prints a device parameter change (level 2).
func Param(name string, from, to float64) {
	emit(LevelLive, slog.LevelInfo, "LIVE", "parameter changed", "param", name, "from", from, "to", to)
}

// Transition prints a state machine transition (level 2).
func Transition(machine, from, to string) {
	emit(LevelLive, slog.LevelInfo, "LIVE", "state transition", "machine", machine, "from", from, "to", to)
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...any) {
	emit(LevelVerbose, slog.LevelDebug, "VERBOSE", fmt.Sprintf(format, args...))
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v any) {
	emit(LevelVerbose, slog.LevelDebug, "VERBOSE", name, "value", fmt.Sprintf("%+v", v))
}

// Section prints a section separator (level 3).
func Section(name string) {
	emit(LevelVerbose, slog.LevelDebug, "VERBOSE", "━━━━ "+name+" ━━━━")
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	emit(LevelVerbose, slog.LevelDebug, "VERBOSE", description, "step", num)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace).
func Trace(format string, args ...any) {
	emit(LevelTrace, slog.LevelDebug, "TRACE", fmt.Sprintf(format, args...))
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value any) {
	emit(LevelTrace, slog.LevelDebug, "GPIO", operation, "pin", pin, "value", value)
}

// Lock prints a device configuration lock event (level 4).
func Lock(deviceID string, acquired bool) {
	emit(LevelTrace, slog.LevelDebug, "LOCK", "configuration lock", "device", deviceID, "acquired", acquired)
}
