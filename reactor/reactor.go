// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral event reactor interface for readiness multiplexing.

package reactor

// Interest is the set of readiness kinds a descriptor is watched for.
type Interest uint32

const (
	OpRead Interest = 1 << iota
	OpWrite
)

// Set returns i with ops added.
func (i Interest) Set(ops Interest) Interest { return i | ops }

// Clear returns i with ops removed.
func (i Interest) Clear(ops Interest) Interest { return i &^ ops }

// Has reports whether every op in ops is present.
func (i Interest) Has(ops Interest) bool { return i&ops == ops }

// Ready is the readiness reported for one descriptor.
type Ready uint32

const (
	ReadyRead Ready = 1 << iota
	ReadyWrite
	ReadyError
	ReadyHangup
)

// Event contains event information returned by Wait call.
type Event struct {
	Fd    int
	Ready Ready
}

// EventReactor defines the reactor operations used by one event loop.
// Register, Modify, Unregister and Wait must be called from the loop
// goroutine; Wake may be called from any goroutine.
type EventReactor interface {
	Register(fd int, ops Interest) error
	Modify(fd int, ops Interest) error
	Unregister(fd int) error

	// Wait blocks until events are available or timeoutMs elapses and
	// writes into the output slice. A negative timeout blocks
	// indefinitely, zero polls. Wake-ups are consumed internally and
	// never reported.
	Wait(events []Event, timeoutMs int) (n int, err error)

	// Wake interrupts a blocked Wait.
	Wake() error

	// Close cleans up resources.
	Close() error
}
