package collect

import (
	"github.com/jonboulle/clockwork"
)

// Context is the process-wide application state, built once in main.
type Context struct {
	Paths    *Paths
	Session  *Session
	Activity *ActivityLogger
	Clock    clockwork.Clock
	DeviceID string
	AppName  string
}
