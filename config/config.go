// Package config defines the runtime configuration for gostunnel and the
// helpers that parse its positional arguments and jump-host specs.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Mode selects which leg of a tunnel pair speaks TLS.
type Mode string

const (
	// ModeStrip accepts plaintext and dials the destination over TLS.
	ModeStrip Mode = "strip"
	// ModeWrap accepts TLS and dials the destination in plaintext.
	ModeWrap Mode = "wrap"
)

// ParseMode accepts "strip" or "wrap", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeStrip, ModeWrap:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want strip or wrap)", s)
}

// InboundTLS reports whether accepted connections are TLS.
func (m Mode) InboundTLS() bool { return m == ModeWrap }

// OutboundTLS reports whether destination connections are TLS.
func (m Mode) OutboundTLS() bool { return m == ModeStrip }

// Config holds every tuneable for one gostunnel process.
type Config struct {
	// ── Tunnel ───────────────────────────────────────────────────────
	Mode        Mode
	LocalPort   int // 0 binds an ephemeral port
	RemotePort  int
	RemoteHost  string
	BindHost    string
	BindHostSet bool // --bind-host was given explicitly

	// ── TLS ──────────────────────────────────────────────────────────
	// ServerName overrides the name verified on the destination
	// certificate in strip mode.  With ServerNameSet and an empty
	// ServerName, verification is disabled.
	ServerName    string
	ServerNameSet bool
	CAPath        string
	CertPath      string
	KeyPath       string
	SelfSigned    bool

	// ── Timing & limits ──────────────────────────────────────────────
	DialTimeout      time.Duration
	DialRetries      int
	HandshakeTimeout time.Duration
	DrainInterval    time.Duration
	MaxDrainAttempts int
	CascadeDelay     time.Duration
	GracePeriod      time.Duration
	BandwidthLimit   int64 // bytes per second per direction, 0 = unlimited
	MaxConnections   int   // 0 = unlimited

	// ── Destination routing ──────────────────────────────────────────
	ProxyURL       string // socks5:// upstream
	ViaSpec        string // raw [user@]host[:port] from --via
	ViaUser        string
	ViaHost        string
	ViaPort        int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string
	SSHKeepAlive   time.Duration

	// ── Output ───────────────────────────────────────────────────────
	StatsInterval time.Duration
	Verbose       int
	Debug         bool
	Quiet         bool
	DryRun        bool
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		RemoteHost:       DefaultRemoteHost,
		BindHost:         DefaultBindHost,
		DialTimeout:      DefaultDialTimeout,
		DialRetries:      DefaultDialRetries,
		HandshakeTimeout: DefaultHandshakeTimeout,
		DrainInterval:    DefaultDrainInterval,
		MaxDrainAttempts: DefaultMaxDrainAttempts,
		CascadeDelay:     DefaultCascadeDelay,
		GracePeriod:      DefaultGracePeriod,
		SSHKeepAlive:     DefaultSSHKeepAlive,
		Verbose:          1,
	}
}

// Verbosity resolves -q, -d and -v into a logger level.
func (c *Config) Verbosity() int {
	switch {
	case c.Quiet:
		return 0
	case c.Debug:
		return 3
	}
	return c.Verbose
}

// ViaEnabled reports whether destination dials go through a jump host.
func (c *Config) ViaEnabled() bool { return c.ViaHost != "" }

// ── Positional arguments ─────────────────────────────────────────────

// ParsePort parses a decimal port number without range checks; Validate
// applies those so the operator sees a hint.
func ParsePort(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return n, nil
}

// ── Jump-host spec parser ────────────────────────────────────────────

// viaRe matches [user@]host[:port], with IPv6 hosts in brackets.
var viaRe = regexp.MustCompile(`^(?:([^@]+)@)?(\[[0-9a-fA-F:.]+\]|[^:@\[\]]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := viaRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid jump host %q; expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = strings.Trim(m[2], "[]")
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid jump host port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("jump host is required")
	}
	return user, host, port, nil
}
