//go:build !unix

// File: store/fileio_other.go
// Author: momentics <momentics@gmail.com>

package store

func (s *Store) pwriteFull(p []byte, off int64) (int, error) {
	return s.file.WriteAt(p, off)
}

func (s *Store) preadFull(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}
