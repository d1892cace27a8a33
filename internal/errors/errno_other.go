//go:build !unix

package errors

import (
	"errors"
	"syscall"
)

func isNotConnectedErrno(err error) bool {
	return errors.Is(err, syscall.ENOTCONN) || errors.Is(err, syscall.ECONNABORTED)
}

func isBadDescriptorErrno(err error) bool {
	return errors.Is(err, syscall.EBADF)
}

func isTransientErrno(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT)
}
