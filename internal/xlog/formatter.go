package xlog

import (
	"bufio"
	"io"
	"strings"
	"time"
)

// Formatter defines log-format (printer) interface.
type Formatter interface {
	// WriteFlush writes the log and flush it to disk.
	// This must be protected by mutex, outside.
	WriteFlush(pkg string, lvl LogLevel, txt string)
	Flush()
}

//////////////////////////////////////////////////////

// defaultFormatter is the "<time> <level> | <pkg>: <text>" line format
// floydd writes to stderr; there is no JSON variant, since floydd has
// no log-shipping pipeline to feed one.
type defaultFormatter struct {
	w *bufio.Writer
}

// NewDefaultFormatter returns a new formatter.
func NewDefaultFormatter(w io.Writer) Formatter {
	return &defaultFormatter{
		w: bufio.NewWriter(w),
	}
}

func (ft *defaultFormatter) WriteFlush(pkg string, lvl LogLevel, txt string) {
	ft.w.WriteString(time.Now().String()[:26])
	ft.w.WriteString(" " + lvl.String() + " | ")
	if pkg != "" {
		ft.w.WriteString(pkg + ": ")
	}
	ft.w.WriteString(txt)

	if !strings.HasSuffix(txt, "\n") {
		ft.w.WriteString("\n")
	}
	ft.w.Flush()
}

func (ft *defaultFormatter) Flush() {
	ft.w.Flush()
}

//////////////////////////////////////////////////////

// SetFormatter sets the formatting function for all logs.
func SetFormatter(f Formatter) {
	xlogger.mu.Lock()
	xlogger.formatter = f
	xlogger.mu.Unlock()
}
