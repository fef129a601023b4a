// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations
// live in affinity_linux.go and affinity_stub.go.

package affinity

import "fmt"

// SetAffinity pins the calling OS thread to the given logical CPU. The
// caller must hold the thread with runtime.LockOSThread for the pin to
// stick to its goroutine.
func SetAffinity(cpuID int) error {
	return Set([]int{cpuID})
}

// Set restricts the calling OS thread to cpus.
func Set(cpus []int) error {
	if len(cpus) == 0 {
		return fmt.Errorf("affinity: empty cpu set")
	}
	for _, c := range cpus {
		if c < 0 {
			return fmt.Errorf("affinity: invalid cpu %d", c)
		}
	}
	return setPlatform(cpus)
}

// Current returns the CPUs the calling thread may run on.
func Current() ([]int, error) {
	return currentPlatform()
}
