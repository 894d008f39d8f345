// Package logging is a thin wrapper around the standard logger adding a
// "[component]" prefix, matching the bare log.Printf/log.Println idiom
// service/draft_service.go and the repositories use throughout — no
// structured-logging library appears anywhere in the retrieval pack, so
// this stays stdlib rather than reaching outside it.
package logging

import "log"

// Logger prefixes every line with its component name.
type Logger struct {
	prefix string
}

// New returns a Logger for the named component, e.g. New("workflow").
func New(component string) *Logger {
	return &Logger{prefix: "[" + component + "] "}
}

func (l *Logger) Printf(format string, args ...interface{}) {
	log.Printf(l.prefix+format, args...)
}

func (l *Logger) Println(args ...interface{}) {
	log.Println(append([]interface{}{l.prefix}, args...)...)
}
