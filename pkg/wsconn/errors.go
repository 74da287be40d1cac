package wsconn

import (
	"errors"
	"fmt"
)

// ErrManagerClosed is returned by Send after Shutdown.
var ErrManagerClosed = errors.New("connection manager closed")

// AddressError reports a destination that does not resolve to a valid
// ws:// or wss:// endpoint. Unlike transport errors it is not retried
// automatically; the destination stays Failed until the next send.
type AddressError struct {
	Value  string
	Reason string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("destination %q: %s", e.Value, e.Reason)
}
