package debug

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (signal changes, command handling)
	LevelLive    = 2 // Live info (phase windows, motor progress)
	LevelVerbose = 3 // Verbose (priority resolution details)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	level  int
	logger *logrus.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (signal transitions, accepted commands)
// 2 = live info (lead windows, motion progress)
// 3 = verbose (boundary resolution, order bookkeeping)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	level = debugLevel
	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	if level <= LevelOff {
		logger.SetOutput(io.Discard)
		return
	}
	logger.SetOutput(os.Stdout)
	// Everything funnels through Info/Warn/Error on the logrus side; the
	// 0-4 gate below decides what gets emitted at all.
	logger.SetLevel(logrus.InfoLevel)
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// SetOutput redirects all debug output, e.g. to an io.MultiWriter that
// mirrors lines to the web status broadcaster.
func SetOutput(w io.Writer) {
	if logger != nil {
		logger.SetOutput(w)
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Infof(format, args...)
	}
}

// Signal prints a signal transition (level 1).
func Signal(num int, policy string) {
	if level >= LevelInfo && logger != nil {
		logger.WithField("policy", policy).Infof("signal changed to %d", num)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Infof(format, args...)
	}
}

// Motion prints motor progress (level 2).
func Motion(state string, remaining int) {
	if level >= LevelLive && logger != nil {
		logger.WithField("remaining", remaining).Infof("motion %s", state)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Infof(format, args...)
	}
}

// Printf is an alias for Verbose, kept for call-site brevity.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Infof("  %s", name)
		logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Infof("  %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Infof(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Infof("GPIO %s pin=%d value=%v", operation, pin, value)
	}
}

// --- General functions ---

// Warn prints a warning (level 1+).
func Warn(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Warnf(format, args...)
	}
}

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.Errorf("%v", err)
	}
}

// Errorf prints a formatted error (level 1+).
func Errorf(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Errorf(format, args...)
	}
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if level > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
