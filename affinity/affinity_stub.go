//go:build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>

package affinity

import "github.com/momentics/hioload-nio/api"

func setPlatform([]int) error { return api.ErrNotSupported }

func currentPlatform() ([]int, error) { return nil, api.ErrNotSupported }
