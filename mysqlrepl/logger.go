package mysqlrepl

import (
	"fmt"
	"strings"

	"github.com/siddontang/go-log/loggers"
)

// Logger is what a connection logs through, the go-mysql syncer included.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

// syncerLogger routes go-mysql's logging into a Logger. Fatal and Panic
// panic after logging instead of exiting the process.
type syncerLogger struct {
	l Logger
}

var _ loggers.Advanced = syncerLogger{}

func sprint(args []any) string {
	return strings.TrimSuffix(fmt.Sprintln(args...), "\n")
}

func (s syncerLogger) Debug(args ...any)                 { s.l.Debugf("%s", sprint(args)) }
func (s syncerLogger) Debugf(format string, args ...any) { s.l.Debugf(format, args...) }
func (s syncerLogger) Debugln(args ...any)               { s.l.Debugf("%s", sprint(args)) }

func (s syncerLogger) Info(args ...any)                 { s.l.Infof("%s", sprint(args)) }
func (s syncerLogger) Infof(format string, args ...any) { s.l.Infof(format, args...) }
func (s syncerLogger) Infoln(args ...any)               { s.l.Infof("%s", sprint(args)) }

func (s syncerLogger) Print(args ...any)                 { s.l.Infof("%s", sprint(args)) }
func (s syncerLogger) Printf(format string, args ...any) { s.l.Infof(format, args...) }
func (s syncerLogger) Println(args ...any)               { s.l.Infof("%s", sprint(args)) }

func (s syncerLogger) Warn(args ...any)                 { s.l.Warnf("%s", sprint(args)) }
func (s syncerLogger) Warnf(format string, args ...any) { s.l.Warnf(format, args...) }
func (s syncerLogger) Warnln(args ...any)               { s.l.Warnf("%s", sprint(args)) }

func (s syncerLogger) Error(args ...any)                 { s.l.Errorf("%s", sprint(args)) }
func (s syncerLogger) Errorf(format string, args ...any) { s.l.Errorf(format, args...) }
func (s syncerLogger) Errorln(args ...any)               { s.l.Errorf("%s", sprint(args)) }

func (s syncerLogger) Fatal(args ...any)                 { s.Panic(args...) }
func (s syncerLogger) Fatalf(format string, args ...any) { s.Panicf(format, args...) }
func (s syncerLogger) Fatalln(args ...any)               { s.Panic(args...) }

func (s syncerLogger) Panic(args ...any) {
	msg := sprint(args)
	s.l.Errorf("%s", msg)
	panic(msg)
}

func (s syncerLogger) Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.l.Errorf("%s", msg)
	panic(msg)
}

func (s syncerLogger) Panicln(args ...any) { s.Panic(args...) }
