//go:build unix

package errors

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isNotConnectedErrno(err error) bool {
	return errors.Is(err, unix.ENOTCONN) || errors.Is(err, unix.ECONNABORTED)
}

func isBadDescriptorErrno(err error) bool {
	return errors.Is(err, unix.EBADF)
}

func isTransientErrno(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED) ||
		errors.Is(err, unix.ECONNRESET) ||
		errors.Is(err, unix.ETIMEDOUT) ||
		errors.Is(err, unix.EHOSTUNREACH) ||
		errors.Is(err, unix.ENETUNREACH)
}
