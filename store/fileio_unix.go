//go:build unix

// File: store/fileio_unix.go
// Author: momentics <momentics@gmail.com>

package store

import (
	"io"

	"golang.org/x/sys/unix"
)

func (s *Store) pwriteFull(p []byte, off int64) (int, error) {
	var done int
	for done < len(p) {
		n, err := unix.Pwrite(s.fd, p[done:], off+int64(done))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return done, err
		}
		done += n
	}
	return done, nil
}

func (s *Store) preadFull(p []byte, off int64) (int, error) {
	var done int
	for done < len(p) {
		n, err := unix.Pread(s.fd, p[done:], off+int64(done))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return done, err
		}
		if n == 0 {
			return done, io.ErrUnexpectedEOF
		}
		done += n
	}
	return done, nil
}
