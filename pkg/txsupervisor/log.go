package txsupervisor

import (
	"fmt"
	"log"
	"os"
)

// logger is a minimal wrapper around the standard library's log.Logger
// that demotes debug-level output to a no-op during recovery: replaying
// the log on startup should not re-log errors already emitted the first
// time around.
type logger struct {
	out        *log.Logger
	recovering func() bool
}

func newLogger(recovering func() bool) *logger {
	return &logger{
		out:        log.New(os.Stderr, "[cellhive] ", log.LstdFlags|log.Lmicroseconds),
		recovering: recovering,
	}
}

func (l *logger) Debugf(format string, args ...interface{}) {
	if l.recovering != nil && l.recovering() {
		return
	}
	l.out.Print("debug: " + fmt.Sprintf(format, args...))
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.out.Print("error: " + fmt.Sprintf(format, args...))
}
