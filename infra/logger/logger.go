package logger

import corelogger "github.com/kilianp07/freightplan/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// New returns a Logger tagged with component. The output format follows
// APP_ENV and the level follows the value set with SetLevel.
func New(component string) Logger {
	return NewZerologLogger(component)
}
