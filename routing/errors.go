package routing

import (
	"errors"
	"fmt"

	"github.com/baronsmv/navi/network"
)

// ErrNoSnapshot is returned when a route is requested before any network was published.
var ErrNoSnapshot = errors.New("no network snapshot published yet")

// NoRouteFoundError is returned when the destination cannot be reached from the origin.
type NoRouteFoundError struct {
	From network.NodeID
	To   network.NodeID
}

func (e *NoRouteFoundError) Error() string {
	return fmt.Sprintf("no route from node %d to node %d", e.From, e.To)
}

// CancellationError is returned when the request context ends during a search.
type CancellationError struct {
	Err error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("route search cancelled: %v", e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }

// InvalidOptionsError reports a request option outside its allowed range.
type InvalidOptionsError struct {
	Field  string
	Reason string
}

func (e *InvalidOptionsError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
