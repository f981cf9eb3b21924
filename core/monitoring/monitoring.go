// Package monitoring is the error reporting port. Reports carry tags such
// as the plan id so failures can be grouped upstream.
package monitoring

import "time"

// Monitor receives errors that need attention beyond a log line.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Flush(timeout time.Duration)
}

// Nop drops every report.
type Nop struct{}

func (Nop) CaptureException(error, map[string]string) {}
func (Nop) Flush(time.Duration)                       {}

// OrNop returns m, or Nop when m is nil.
func OrNop(m Monitor) Monitor {
	if m == nil {
		return Nop{}
	}
	return m
}
