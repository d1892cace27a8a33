package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the GOSTUNNEL_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive); durations accept Go
// syntax ("250ms") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty,
// well-formed values override.  Call it after defining flags and before
// parsing them so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("GOSTUNNEL_REMOTE_HOST"); v != "" {
		cfg.RemoteHost = v
	}
	if v := os.Getenv("GOSTUNNEL_BIND_HOST"); v != "" {
		cfg.BindHost = v
		cfg.BindHostSet = true
	}
	if v, ok := os.LookupEnv("GOSTUNNEL_OVERRIDE_SSL_HOSTNAME"); ok {
		cfg.ServerName = v
		cfg.ServerNameSet = true
	}

	// TLS material
	if v := os.Getenv("GOSTUNNEL_CA"); v != "" {
		cfg.CAPath = v
	}
	if v := os.Getenv("GOSTUNNEL_CERT"); v != "" {
		cfg.CertPath = v
	}
	if v := os.Getenv("GOSTUNNEL_KEY"); v != "" {
		cfg.KeyPath = v
	}
	if envBool("GOSTUNNEL_SELF_SIGNED") {
		cfg.SelfSigned = true
	}

	// Timing & limits
	if d := envDuration("GOSTUNNEL_DIAL_TIMEOUT"); d > 0 {
		cfg.DialTimeout = d
	}
	if v, ok := envInt("GOSTUNNEL_DIAL_RETRIES"); ok {
		cfg.DialRetries = v
	}
	if d := envDuration("GOSTUNNEL_HANDSHAKE_TIMEOUT"); d > 0 {
		cfg.HandshakeTimeout = d
	}
	if d := envDuration("GOSTUNNEL_DRAIN_INTERVAL"); d > 0 {
		cfg.DrainInterval = d
	}
	if v, ok := envInt("GOSTUNNEL_DRAIN_ATTEMPTS"); ok && v > 0 {
		cfg.MaxDrainAttempts = v
	}
	if v, ok := envInt("GOSTUNNEL_BANDWIDTH"); ok {
		cfg.BandwidthLimit = int64(v)
	}
	if v, ok := envInt("GOSTUNNEL_MAX_CONNS"); ok {
		cfg.MaxConnections = v
	}

	// Destination routing
	if v := os.Getenv("GOSTUNNEL_PROXY"); v != "" {
		cfg.ProxyURL = v
	}
	if v := os.Getenv("GOSTUNNEL_VIA"); v != "" {
		cfg.ViaSpec = v
	}
	if v := os.Getenv("GOSTUNNEL_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("GOSTUNNEL_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("GOSTUNNEL_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("GOSTUNNEL_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("GOSTUNNEL_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if d := envDuration("GOSTUNNEL_STATS_INTERVAL"); d > 0 {
		cfg.StatsInterval = d
	}
	if v, ok := envInt("GOSTUNNEL_VERBOSE"); ok && v > 0 {
		cfg.Verbose = v
	}
	if envBool("GOSTUNNEL_DEBUG") {
		cfg.Debug = true
	}
}

// SSHPasswordFromEnv returns the non-interactive jump-host password.
// It is read at dial setup rather than stored by LoadFromEnv so that it
// never appears in a printed Config.
func SSHPasswordFromEnv() string {
	return os.Getenv("GOSTUNNEL_SSH_PASS")
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return 0
}
