package rfwerr

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
)

// ClassifyTransportError maps a Go net/http transport error onto the
// curl-code taxonomy §4.C/§4.E/§7 reason about (TLS-class failures trigger a
// state-red evaluation in the coordinator and the download worker; other
// transport failures make the download worker write a block file). Go's
// http client doesn't speak curl codes natively, so this mapping picks the
// closest representative code for each Go error class.
func ClassifyTransportError(err error) *NetworkError {
	var tlsErr tls.RecordHeaderError
	if errors.As(err, &tlsErr) {
		return &NetworkError{TlsCurlCode: 35, Message: err.Error()} // CURLE_SSL_CONNECT_ERROR
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return &NetworkError{TlsCurlCode: 60, Message: err.Error()} // CURLE_PEER_FAILED_VERIFICATION
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &NetworkError{Timeout: true, Message: err.Error()}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Timeout: true, Message: err.Error()}
	}

	// ECONNREFUSED/EHOSTUNREACH surface wrapped inside *net.OpError without
	// a portable sentinel; a substring check is the pragmatic coarse
	// classification the error taxonomy needs (§7).
	if isConnectionRefused(err) {
		return &NetworkError{ConnectionRefused: true, Message: err.Error()}
	}

	return &NetworkError{Message: err.Error()}
}

func isConnectionRefused(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "no route to host")
}
