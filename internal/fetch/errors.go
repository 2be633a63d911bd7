package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a fetch failure. The trust kind is the trigger for
// certificate-chain escalation; every other kind is terminal.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindConnection Kind = "connection"
	KindTrust      Kind = "trust"
	KindOther      Kind = "other"
)

// ErrEscalation indicates the certificate-chain capture handshake itself failed.
var ErrEscalation = errors.New("trust escalation failed")

// ErrBodyTooLarge indicates a response body exceeded the configured cap.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Error is a tagged fetch failure. Retry policy downstream is a pure
// function of Kind, never of the wrapped error's concrete type.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify maps a transport error to its Kind.
func classify(err error) Kind {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return KindTrust
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return KindTrust
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return KindTrust
	}
	var invalidCert x509.CertificateInvalidError
	if errors.As(err, &invalidCert) {
		return KindTrust
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnection
	}

	return KindOther
}
