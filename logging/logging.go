/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package logging provides the timestamped, verbosity-gated log function
// shared by every netpong package.
package logging

import (
	"log"
	"time"
)

const Date string = `2006-01-02T15:04:05.000-07:00`

// Func logs one formatted line. Packages take a Func instead of a logger so
// that tests can pass Discard or capture output.
type Func func(format string, args ...any)

func Discard(string, ...any) {}

// New returns a Func that writes to the standard logger when verbose is set,
// and discards everything otherwise.
func New(verbose bool) Func {
	if !verbose {
		return Discard
	}

	return func(format string, args ...any) {
		log.Printf("%s | "+format, append([]any{time.Now().Format(Date)}, args...)...)
	}
}

// Errorf always writes, regardless of verbosity.
func Errorf(format string, args ...any) {
	log.Printf("%s | ERROR: "+format, append([]any{time.Now().Format(Date)}, args...)...)
}

// OrDiscard lets constructors accept a nil Func.
func OrDiscard(f Func) Func {
	if f == nil {
		return Discard
	}

	return f
}
