package labnet

//
// Error taxonomy
//

import (
	"errors"
	"strings"
)

// ErrDuplicateNode indicates that a node name has already been added
// to a [TopologyBuilder].
var ErrDuplicateNode = errors.New("labnet: node has already been added")

// ErrUnknownNode indicates that a link endpoint or a lookup references
// a node name that has never been added.
var ErrUnknownNode = errors.New("labnet: no such node")

// ErrLinkToSelf indicates that both endpoints of a link reference
// the same node.
var ErrLinkToSelf = errors.New("labnet: link endpoints reference the same node")

// ErrProvision indicates that the backend failed to realize an
// OS-level resource (namespace, interface, link, or address).
var ErrProvision = errors.New("labnet: provisioning failed")

// ErrPingTimeout indicates that a reachability probe received no
// reply within its timeout.
var ErrPingTimeout = errors.New("labnet: ping timed out")

// ErrNotRunning indicates that an operation requires a running [Network].
var ErrNotRunning = errors.New("labnet: network is not running")

// ErrAlreadyStarted indicates that Start has already been called
// on this [Network].
var ErrAlreadyStarted = errors.New("labnet: network has already been started")

// ValidationError is the error returned by [TopologyBuilder.Build] when
// the declared topology violates one or more invariants. It collects
// every violation found, not just the first one, so that a caller can
// fix the whole declaration in a single pass.
type ValidationError struct {
	// Violations contains all the violations we found.
	Violations []error
}

var _ error = &ValidationError{}

// Error implements error
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("labnet: invalid topology: ")
	for index, err := range e.Violations {
		b.WriteString(err.Error())
		if index < len(e.Violations)-1 {
			b.WriteString("; ")
		}
	}
	return b.String()
}

// Unwrap returns the individual violations, which allows callers to
// use [errors.Is] to check for a specific violation kind.
func (e *ValidationError) Unwrap() []error {
	return e.Violations
}
