package errors

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
)

// ── Close-failure policy ─────────────────────────────────────────────
//
// A relay endpoint closes its socket in two steps: an optional TLS
// close_notify exchange, then the close of the descriptor itself.  Each
// step has a small set of failures that only mean "the other side got
// there first".  Everything else is reported.

// IsExpectedSecureShutdown reports whether err, returned while sending
// TLS close_notify, means the connection was already gone: the
// handshake never completed, the socket is not connected, or the peer
// aborted it.
func IsExpectedSecureShutdown(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrNotConnected) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return isNotConnectedErrno(err)
}

// IsAlreadyClosed reports whether err, returned by Close, means the
// descriptor had already been released.
func IsAlreadyClosed(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	return isBadDescriptorErrno(err)
}

// IsCertificateError reports whether err came from TLS peer
// verification.  Such failures are permanent: retrying the dial will
// present the same certificate.
func IsCertificateError(err error) bool {
	if err == nil {
		return false
	}
	var (
		verr     *tls.CertificateVerificationError
		unknown  x509.UnknownAuthorityError
		hostname x509.HostnameError
		invalid  x509.CertificateInvalidError
	)
	return errors.As(err, &verr) ||
		errors.As(err, &unknown) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid)
}
