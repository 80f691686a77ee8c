// Package xlog is floydd's leveled logger: one *Logger per package,
// each independently silenceable, all writing through a single
// formatter so a server's log stream reads as one stream regardless
// of which package (raft, raftlog, kvstore, ...) emitted a line.
package xlog

import (
	"log"
	"os"
)

// stdLogWriter redirects anything written through the standard "log"
// package (net/http's server error log, for one) into xlog's own
// formatter, so a stray log.Print from a dependency doesn't produce a
// differently-formatted line in floydd's output.
type stdLogWriter struct {
	l *Logger
}

func (s stdLogWriter) Write(b []byte) (int, error) {
	s.l.log(INFO, string(b))
	return len(b), nil
}

func init() {
	// to overwrite standard logger
	log.SetFlags(0)
	log.SetPrefix("")

	wr := stdLogWriter{l: NewLogger("", INFO)}
	log.SetOutput(wr)

	// by default, log-output to stderr
	SetFormatter(NewDefaultFormatter(os.Stderr))
}
