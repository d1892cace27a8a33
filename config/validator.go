package config

import (
	"net/url"
	"strings"

	ncerr "gostunnel/internal/errors"
	"gostunnel/util"
)

// Validate checks that the configuration is internally consistent.  All
// failures are *errors.ConfigError values carrying a hint for the
// operator; none of them touch the network.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeStrip, ModeWrap:
	default:
		return &ncerr.ConfigError{
			Field:   "mode",
			Value:   valueOrNil(string(c.Mode)),
			Message: "must be strip or wrap",
			Hint:    "gostunnel strip 8080 443 example.com",
		}
	}

	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return &ncerr.ConfigError{
			Field: "local-port", Value: c.LocalPort,
			Message: "out of range 0-65535",
			Hint:    "use 0 for an ephemeral port",
		}
	}
	if c.RemotePort < 1 || c.RemotePort > 65535 {
		return &ncerr.ConfigError{
			Field: "remote-port", Value: c.RemotePort,
			Message: "out of range 1-65535",
		}
	}
	if strings.TrimSpace(c.RemoteHost) == "" {
		return &ncerr.ConfigError{Field: "remote-host", Message: "is required"}
	}

	var err error
	if c.Mode == ModeWrap {
		err = c.validateWrap()
	} else {
		err = c.validateStrip()
	}
	if err != nil {
		return err
	}

	if err := c.validateRouting(); err != nil {
		return err
	}
	return c.validateLimits()
}

func (c *Config) validateStrip() error {
	if c.CertPath != "" || c.KeyPath != "" || c.SelfSigned {
		return &ncerr.ConfigError{
			Field:   "cert",
			Message: "certificates are only used in wrap mode",
			Hint:    "strip mode verifies the destination; use --ca to add trusted roots",
		}
	}
	// Certificates are never issued for loopback names, so verification
	// against them always fails.
	if util.IsLoopback(c.RemoteHost) && !c.ServerNameSet {
		return &ncerr.ConfigError{
			Field:   "override-ssl-hostname",
			Message: "must be specified for loopback remotes",
			Hint:    `pass the name on the destination certificate, or --override-ssl-hostname="" to skip verification`,
		}
	}
	return nil
}

func (c *Config) validateWrap() error {
	switch {
	case c.SelfSigned && (c.CertPath != "" || c.KeyPath != ""):
		return &ncerr.ConfigError{
			Field:   "self-signed",
			Message: "cannot be combined with --cert/--key",
		}
	case !c.SelfSigned && (c.CertPath == "" || c.KeyPath == ""):
		return &ncerr.ConfigError{
			Field:   "cert",
			Message: "wrap mode requires --cert and --key",
			Hint:    "use --self-signed for a throwaway certificate",
		}
	case !c.BindHostSet || c.BindHost == "":
		return &ncerr.ConfigError{
			Field:   "bind-host",
			Message: "is required in wrap mode",
			Hint:    "--bind-host 0.0.0.0 accepts TLS clients on every interface",
		}
	case c.ServerNameSet || c.CAPath != "":
		return &ncerr.ConfigError{
			Field:   "override-ssl-hostname",
			Message: "--override-ssl-hostname and --ca are only used in strip mode",
		}
	}
	return nil
}

func (c *Config) validateRouting() error {
	if c.ProxyURL != "" && c.ViaHost != "" {
		return &ncerr.ConfigError{
			Field:   "proxy",
			Message: "--proxy and --via are mutually exclusive",
		}
	}
	if c.ProxyURL != "" {
		u, err := url.Parse(c.ProxyURL)
		if err != nil || (u.Scheme != "socks5" && u.Scheme != "socks5h") || u.Host == "" {
			return &ncerr.ConfigError{
				Field: "proxy", Value: c.ProxyURL,
				Message: "must be a socks5:// or socks5h:// URL",
				Hint:    "socks5://127.0.0.1:1080",
			}
		}
	}
	if c.ViaSpec != "" && c.ViaHost == "" {
		return &ncerr.ConfigError{Field: "via", Value: c.ViaSpec, Message: "jump host is required"}
	}
	if c.ViaHost != "" && (c.ViaPort < 1 || c.ViaPort > 65535) {
		return &ncerr.ConfigError{Field: "via", Value: c.ViaPort, Message: "port out of range 1-65535"}
	}
	return nil
}

func (c *Config) validateLimits() error {
	switch {
	case c.DialTimeout <= 0:
		return &ncerr.ConfigError{Field: "dial-timeout", Value: c.DialTimeout, Message: "must be positive"}
	case c.HandshakeTimeout <= 0:
		return &ncerr.ConfigError{Field: "handshake-timeout", Value: c.HandshakeTimeout, Message: "must be positive"}
	case c.DialRetries < 0:
		return &ncerr.ConfigError{Field: "dial-retries", Value: c.DialRetries, Message: "must not be negative"}
	case c.DrainInterval <= 0:
		return &ncerr.ConfigError{Field: "drain-interval", Value: c.DrainInterval, Message: "must be positive"}
	case c.MaxDrainAttempts < 1:
		return &ncerr.ConfigError{
			Field: "drain-attempts", Value: c.MaxDrainAttempts,
			Message: "must be at least 1",
			Hint:    "a connection with unsent data is forced closed after this many checks",
		}
	case c.CascadeDelay < 0:
		return &ncerr.ConfigError{Field: "cascade-delay", Value: c.CascadeDelay, Message: "must not be negative"}
	case c.BandwidthLimit < 0:
		return &ncerr.ConfigError{Field: "bandwidth", Value: c.BandwidthLimit, Message: "must not be negative", Hint: "0 disables the limit"}
	case c.MaxConnections < 0:
		return &ncerr.ConfigError{Field: "max-conns", Value: c.MaxConnections, Message: "must not be negative", Hint: "0 disables the limit"}
	case c.StatsInterval < 0:
		return &ncerr.ConfigError{Field: "stats-interval", Value: c.StatsInterval, Message: "must not be negative"}
	}
	return nil
}

func valueOrNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
