/*package fault contains the error kinds which terminate a marker run.

None of these errors are recoverable. A rank which encounters one returns it
up the call stack, and the process group tears down every other rank.
*/
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal error.
type Kind int

const (
	// Configuration errors are detected at setup.
	Configuration Kind = iota
	// Capacity errors indicate an overfull marker array or transfer buffer.
	Capacity
	// Topology errors indicate corrupted migration bookkeeping.
	Topology
	// DomainOverflow errors indicate a marker outside the tabulated mesh.
	DomainOverflow
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "ConfigurationError"
	case Capacity:
		return "CapacityError"
	case Topology:
		return "TopologyError"
	case DomainOverflow:
		return "DomainOverflowError"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error implements the error interface so that errors.Is(err, fault.Capacity)
// reports whether err has the given kind.
func (k Kind) Error() string { return k.String() }

// Error is a fatal error raised by some rank.
type Error struct {
	Kind Kind
	// Rank is the process which raised the error, or -1 if it is unknown.
	Rank int
	Msg  string
}

func (e *Error) Error() string {
	if e.Rank < 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s on rank %d: %s", e.Kind, e.Rank, e.Msg)
}

// Is allows errors.Is to match both against Kinds and against other *Errors
// of the same Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

func newf(k Kind, rank int, format string, args ...interface{}) error {
	return &Error{Kind: k, Rank: rank, Msg: fmt.Sprintf(format, args...)}
}

// Configf returns a configuration error. Configuration errors are not tied to
// a rank.
func Configf(format string, args ...interface{}) error {
	return newf(Configuration, -1, format, args...)
}

// Capacityf returns a capacity error raised by the given rank.
func Capacityf(rank int, format string, args ...interface{}) error {
	return newf(Capacity, rank, format, args...)
}

// Topologyf returns a topology error raised by the given rank.
func Topologyf(rank int, format string, args ...interface{}) error {
	return newf(Topology, rank, format, args...)
}

// Overflowf returns a domain overflow error raised by the given rank.
func Overflowf(rank int, format string, args ...interface{}) error {
	return newf(DomainOverflow, rank, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
