//go:build !linux

// File: store/sendfile_other.go
// Author: momentics <momentics@gmail.com>

package store

func (s *Store) sendfile(int, int64, int64) (int64, bool, error) {
	return 0, false, nil
}
