package xlog

import (
	"fmt"
	"sync"
)

// LogLevel is the set of levels floydd accepts on its -log_level flag.
type LogLevel int8

const (
	// CRITICAL is the lowest log level. Logging at it does not exit the
	// program.
	CRITICAL LogLevel = iota - 1

	// ERROR is for errors, but does not fatal. Only indicates potential troubles.
	ERROR

	// WARN warns about potential errors or problems.
	WARN

	// INFO just indicates information.
	INFO

	// DEBUG is debug-level logging.
	DEBUG
)

// String returns a single-character representation of LogLevel.
func (l LogLevel) String() string {
	switch l {
	case CRITICAL:
		return "C"
	case ERROR:
		return "E"
	case WARN:
		return "W"
	case INFO:
		return "I"
	case DEBUG:
		return "D"
	default:
		panic("unknown LogLevel")
	}
}

// ParseLogLevel maps floydd's -log_level flag value to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch s {
	case "error":
		return ERROR, nil
	case "warn":
		return WARN, nil
	case "info":
		return INFO, nil
	case "debug":
		return DEBUG, nil
	default:
		return 0, fmt.Errorf("xlog: unknown log level %q", s)
	}
}

// Logger contains log prefix(pkg) and LogLevel.
type Logger struct {
	pkg    string
	maxLvl LogLevel
}

//////////////////////////////////////////////////////

func (l *Logger) log(lvl LogLevel, txt string) {
	if lvl < CRITICAL || lvl > DEBUG {
		return
	}

	xlogger.mu.Lock()
	if l.maxLvl < lvl {
		xlogger.mu.Unlock()
		return
	}
	xlogger.formatter.WriteFlush(l.pkg, lvl, txt)
	xlogger.mu.Unlock()
}

// Errorf logs cluster and I/O failures that a raft.Node or Server
// operation surfaces to its caller, including the failures that halt a
// raft.Node.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...))
}

// Warningf logs recoverable anomalies, such as repairing a torn
// segment tail during crash recovery.
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, args...))
}

// Infof logs lifecycle events: listener startup, role transitions.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...))
}

// Debugf logs consensus-internal detail, off by default.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...))
}

//////////////////////////////////////////////////////

type globalLogger struct {
	mu        sync.Mutex
	loggers   map[string]*Logger
	formatter Formatter
}

var xlogger = &globalLogger{
	loggers: make(map[string]*Logger),
}

// SetGlobalMaxLogLevel sets max log levels of all loggers. floydd's
// -log_level flag calls this once at startup.
func SetGlobalMaxLogLevel(lvl LogLevel) {
	xlogger.mu.Lock()
	for _, lg := range xlogger.loggers {
		lg.maxLvl = lvl
	}
	xlogger.mu.Unlock()
}

// NewLogger returns a Logger with pkg prefix.
func NewLogger(pkg string, maxLvl LogLevel) *Logger {
	lg := &Logger{pkg: pkg, maxLvl: maxLvl}

	xlogger.mu.Lock() // overwrite
	xlogger.loggers[pkg] = lg
	xlogger.mu.Unlock()

	return lg
}
