package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// ProxyDialer reaches destinations through a SOCKS5 proxy.
type ProxyDialer struct {
	URL    string
	dialer proxy.Dialer
}

// NewProxyDialer parses a socks5:// or socks5h:// URL.  Credentials in
// the URL are used for proxy authentication.
func NewProxyDialer(rawURL string, timeout time.Duration) (*ProxyDialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("proxy url: %w", err)
	}
	switch u.Scheme {
	case "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("proxy url: unsupported scheme %q", u.Scheme)
	}

	d, err := proxy.FromURL(u, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("proxy %s: %w", u.Host, err)
	}
	return &ProxyDialer{URL: u.Redacted(), dialer: d}, nil
}

// Dial asks the proxy to connect to address.
func (d *ProxyDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := d.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}
	return d.dialer.Dial(network, address)
}

// Close is a no-op; the proxy holds no session.
func (d *ProxyDialer) Close() error { return nil }
