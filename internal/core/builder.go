package core

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"gostunnel/config"
	"gostunnel/internal/certs"
	"gostunnel/internal/metrics"
	"gostunnel/internal/transport"
	"gostunnel/tunnel"
	"gostunnel/util"
)

// TunnelMode binds a Listener and serves it until the context ends.
type TunnelMode struct {
	Options Options
	Logger  *util.Logger

	// Bound, when set, receives the Listener right after it binds.
	Bound func(*Listener)
}

// Run binds and serves.
func (m *TunnelMode) Run(ctx context.Context) error {
	l, err := Bind(m.Options)
	if err != nil {
		return err
	}
	m.Logger.Info("listening on %s (%s)", l.Addr(), m.Options.Mode)
	if m.Bound != nil {
		m.Bound(l)
	}
	return l.Serve(ctx)
}

// Build constructs the Mode for cfg.  It loads every certificate and
// key up front so that a bad path fails before any socket is opened.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	m := metrics.New()
	opts := Options{
		Mode:               cfg.Mode,
		BindHost:           cfg.BindHost,
		Port:               cfg.LocalPort,
		DestHost:           cfg.RemoteHost,
		DestPort:           cfg.RemotePort,
		OverrideServerName: cfg.ServerNameSet,
		ServerName:         cfg.ServerName,
		DialTimeout:        cfg.DialTimeout,
		DialRetries:        cfg.DialRetries,
		HandshakeTimeout:   cfg.HandshakeTimeout,
		DrainInterval:      cfg.DrainInterval,
		MaxDrainAttempts:   cfg.MaxDrainAttempts,
		CascadeDelay:       cfg.CascadeDelay,
		GracePeriod:        cfg.GracePeriod,
		BandwidthLimit:     cfg.BandwidthLimit,
		MaxConnections:     cfg.MaxConnections,
		StatsInterval:      cfg.StatsInterval,
		Logger:             logger,
		Metrics:            m,
	}

	switch cfg.Mode {
	case config.ModeStrip:
		roots, err := certs.LoadCAPool(cfg.CAPath)
		if err != nil {
			return nil, err
		}
		opts.ClientTLS = &tls.Config{MinVersion: tls.VersionTLS12, RootCAs: roots}
	case config.ModeWrap:
		cert, err := serverCertificate(cfg, logger)
		if err != nil {
			return nil, err
		}
		opts.ServerTLS = certs.ServerConfig(cert)
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	upstream, err := buildUpstream(cfg, logger, m)
	if err != nil {
		return nil, err
	}
	opts.Upstream = upstream

	return &TunnelMode{Options: opts, Logger: logger}, nil
}

func serverCertificate(cfg *config.Config, logger *util.Logger) (tls.Certificate, error) {
	if !cfg.SelfSigned {
		return certs.LoadKeyPair(cfg.CertPath, cfg.KeyPath)
	}
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if ip := net.ParseIP(cfg.BindHost); cfg.BindHost != "" && !util.IsLoopback(cfg.BindHost) && (ip == nil || !ip.IsUnspecified()) {
		hosts = append([]string{cfg.BindHost}, hosts...)
	}
	logger.Warn("using a self-signed certificate for %v; clients must skip verification", hosts)
	return certs.SelfSigned(hosts...)
}

// buildUpstream creates the raw destination dialer.
func buildUpstream(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (transport.Dialer, error) {
	switch {
	case cfg.ViaEnabled():
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.ViaUser,
			Host:          cfg.ViaHost,
			Port:          cfg.ViaPort,
			KeyPath:       cfg.SSHKeyPath,
			Password:      config.SSHPasswordFromEnv(),
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.DialTimeout,
			KeepAlive:     cfg.SSHKeepAlive,
		}, logger, m), nil
	case cfg.ProxyURL != "":
		return transport.NewProxyDialer(cfg.ProxyURL, cfg.DialTimeout)
	default:
		return &transport.TCPDialer{Timeout: cfg.DialTimeout}, nil
	}
}
