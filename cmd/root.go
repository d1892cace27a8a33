// Package cmd wires up the CLI flags and dispatches to the tunnel core.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"gostunnel/config"
	"gostunnel/internal/core"
	"gostunnel/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X gostunnel/cmd.version=2.0.0"
var version = "0.3.0" //nolint:gochecknoglobals

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout //nolint:gochecknoglobals
	stderr io.Writer = os.Stderr //nolint:gochecknoglobals
)

// Execute parses args and runs the tunnel until ctx is done.
func Execute(ctx context.Context, args []string) error {
	cfg := config.New()
	fs := flag.NewFlagSet("gostunnel", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── TLS ──────────────────────────────────────────────────────
	fs.StringVar(&cfg.ServerName, "override-ssl-hostname", cfg.ServerName,
		`strip: name to verify on the destination certificate ("" disables verification)`)
	fs.StringVar(&cfg.CAPath, "ca", cfg.CAPath, "strip: extra trusted roots (PEM)")
	fs.StringVar(&cfg.CertPath, "cert", cfg.CertPath, "wrap: server certificate (PEM)")
	fs.StringVar(&cfg.KeyPath, "key", cfg.KeyPath, "wrap: server private key (PEM)")
	fs.BoolVar(&cfg.SelfSigned, "self-signed", cfg.SelfSigned, "wrap: generate a throwaway certificate")
	fs.StringVar(&cfg.BindHost, "bind-host", cfg.BindHost, "Local address to listen on (required for wrap)")

	// ── timing & limits ──────────────────────────────────────────
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Destination connect + handshake timeout")
	fs.IntVar(&cfg.DialRetries, "dial-retries", cfg.DialRetries, "Extra attempts after a transient dial failure")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "wrap: inbound TLS handshake timeout")
	fs.DurationVar(&cfg.DrainInterval, "drain-interval", cfg.DrainInterval, "Wait between checks for unsent data on close")
	fs.IntVar(&cfg.MaxDrainAttempts, "drain-attempts", cfg.MaxDrainAttempts, "Checks before a connection with unsent data is forced closed")
	fs.Int64Var(&cfg.BandwidthLimit, "bandwidth", cfg.BandwidthLimit, "Bytes per second per direction per connection (0 = unlimited)")
	fs.IntVar(&cfg.MaxConnections, "max-conns", cfg.MaxConnections, "Concurrent connections (0 = unlimited)")

	// ── destination routing ──────────────────────────────────────
	fs.StringVar(&cfg.ProxyURL, "proxy", cfg.ProxyURL, "Reach the destination through socks5://host:port")
	fs.StringVar(&cfg.ViaSpec, "via", cfg.ViaSpec, "Reach the destination through SSH jump host [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "Log traffic counters this often (0 = never)")
	var vcount int
	fs.CountVarP(&vcount, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&cfg.Debug, "debug", "d", cfg.Debug, "Debug logging")
	fs.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, "Errors only")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate the configuration and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// Environment sits between defaults and flags.
	config.LoadFromEnv(cfg)

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "gostunnel %s\n", version)
		return nil
	}

	// -v counts up from the default level.
	if vcount > 0 {
		cfg.Verbose = max(cfg.Verbose, 1) + vcount
	}
	if fs.Changed("override-ssl-hostname") {
		cfg.ServerNameSet = true
	}
	if fs.Changed("bind-host") {
		cfg.BindHostSet = true
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── jump host ────────────────────────────────────────────────
	if cfg.ViaSpec != "" {
		if err := resolveVia(cfg); err != nil {
			return err
		}
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbosity())
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.DryRun {
		fmt.Fprintf(stdout, "configuration OK: %s %s:%d -> %s:%d\n",
			cfg.Mode, cfg.BindHost, cfg.LocalPort, cfg.RemoteHost, cfg.RemotePort)
		return nil
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// parsePositional reads MODE LOCAL_PORT REMOTE_PORT [REMOTE_HOST].
func parsePositional(cfg *config.Config, remaining []string) error {
	if len(remaining) < 3 {
		return fmt.Errorf("expected MODE LOCAL_PORT REMOTE_PORT [REMOTE_HOST] (use --help for usage)")
	}
	if len(remaining) > 4 {
		return fmt.Errorf("too many arguments: %v", remaining[4:])
	}

	mode, err := config.ParseMode(remaining[0])
	if err != nil {
		return err
	}
	cfg.Mode = mode

	if cfg.LocalPort, err = config.ParsePort(remaining[1]); err != nil {
		return fmt.Errorf("local port: %w", err)
	}
	if cfg.RemotePort, err = config.ParsePort(remaining[2]); err != nil {
		return fmt.Errorf("remote port: %w", err)
	}
	if len(remaining) == 4 {
		cfg.RemoteHost = remaining[3]
	}
	return nil
}

func resolveVia(cfg *config.Config) error {
	user, host, port, err := config.ParseTunnelSpec(cfg.ViaSpec)
	if err != nil {
		return fmt.Errorf("via: %w", err)
	}
	if user == "" {
		user = os.Getenv("USER")
	}
	cfg.ViaUser, cfg.ViaHost, cfg.ViaPort = user, host, port
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `gostunnel v%s

Relays TCP connections while adding or removing TLS on one leg.

Usage:
  gostunnel [options] strip LOCAL_PORT REMOTE_PORT [REMOTE_HOST]   plaintext in, TLS out
  gostunnel [options] wrap  LOCAL_PORT REMOTE_PORT [REMOTE_HOST]   TLS in, plaintext out

REMOTE_HOST defaults to localhost.  LOCAL_PORT 0 picks a free port.

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  gostunnel strip 8080 443 api.example.com
  gostunnel strip --override-ssl-hostname="" 8080 8443 localhost
  gostunnel wrap --bind-host 0.0.0.0 --cert srv.crt --key srv.key 8443 80
  gostunnel strip --via ops@bastion 5433 5432 db.internal
`)
}
