// Package safehttp provides an HTTP transport that refuses to dial
// loopback, private and link-local addresses.
package safehttp

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrDeniedAddress is returned (wrapped) when a dial targets a blocked range.
var ErrDeniedAddress = errors.New("address is not publicly routable")

// SafeTransport is the default blocking transport.
var SafeTransport = NewTransport(5 * time.Second)

// NewTransport returns a transport whose dialer checks every resolved
// address before connecting, so a DNS answer pointing inward is rejected
// without opening a socket.
func NewTransport(dialTimeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout: dialTimeout,
		Control: func(network, address string, _ syscall.RawConn) error {
			return checkAddress(address)
		},
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = dialer.DialContext
	return t
}

func checkAddress(address string) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("parse dial address %q: %w", address, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("dial address %q is not an IP", address)
	}
	if Denied(ip) {
		return fmt.Errorf("dial %s: %w", ip, ErrDeniedAddress)
	}
	return nil
}

// Denied reports whether ip is in a range the transport refuses.
func Denied(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
