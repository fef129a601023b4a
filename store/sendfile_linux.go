//go:build linux

// File: store/sendfile_linux.go
// Author: momentics <momentics@gmail.com>
//
// Zero-copy region to socket transfer.

package store

import "golang.org/x/sys/unix"

// sendfile reports handled=false when the destination does not support
// sendfile so the caller can fall back to a copy loop.
func (s *Store) sendfile(dstFd int, off, count int64) (int64, bool, error) {
	var total int64
	for total < count {
		o := off + total
		n, err := unix.Sendfile(dstFd, s.fd, &o, int(count-total))
		if n > 0 {
			total += int64(n)
		}
		switch err {
		case nil:
			if n == 0 {
				return total, true, nil
			}
		case unix.EINTR:
		case unix.EAGAIN:
			return total, true, nil
		case unix.EINVAL, unix.ENOSYS, unix.EOPNOTSUPP:
			if total == 0 {
				return 0, false, nil
			}
			return total, true, nil
		default:
			return total, true, err
		}
	}
	return total, true, nil
}
