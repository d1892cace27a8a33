package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Strings(t *testing.T) {
	t.Setenv("GOSTUNNEL_REMOTE_HOST", "db.internal")
	t.Setenv("GOSTUNNEL_CA", "/etc/ca.pem")
	t.Setenv("GOSTUNNEL_PROXY", "socks5://127.0.0.1:1080")

	cfg := New()
	LoadFromEnv(cfg)
	if cfg.RemoteHost != "db.internal" {
		t.Errorf("RemoteHost = %q", cfg.RemoteHost)
	}
	if cfg.CAPath != "/etc/ca.pem" || cfg.ProxyURL != "socks5://127.0.0.1:1080" {
		t.Errorf("CAPath = %q, ProxyURL = %q", cfg.CAPath, cfg.ProxyURL)
	}
}

func TestLoadFromEnv_BindHostMarksSet(t *testing.T) {
	t.Setenv("GOSTUNNEL_BIND_HOST", "0.0.0.0")
	cfg := New()
	LoadFromEnv(cfg)
	if cfg.BindHost != "0.0.0.0" || !cfg.BindHostSet {
		t.Errorf("BindHost = %q, set = %v", cfg.BindHost, cfg.BindHostSet)
	}
}

func TestLoadFromEnv_EmptyOverrideDisablesVerification(t *testing.T) {
	t.Setenv("GOSTUNNEL_OVERRIDE_SSL_HOSTNAME", "")
	cfg := New()
	LoadFromEnv(cfg)
	if !cfg.ServerNameSet || cfg.ServerName != "" {
		t.Errorf("ServerName = %q, set = %v", cfg.ServerName, cfg.ServerNameSet)
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	tests := []struct {
		key    string
		values []string
		get    func(*Config) bool
	}{
		{"GOSTUNNEL_SELF_SIGNED", []string{"1", "true", "YES"}, func(c *Config) bool { return c.SelfSigned }},
		{"GOSTUNNEL_SSH_AGENT", []string{"true"}, func(c *Config) bool { return c.UseSSHAgent }},
		{"GOSTUNNEL_SSH_PASSWORD", []string{"1"}, func(c *Config) bool { return c.SSHPassword }},
		{"GOSTUNNEL_STRICT_HOSTKEY", []string{"yes"}, func(c *Config) bool { return c.StrictHostKey }},
		{"GOSTUNNEL_DEBUG", []string{"True"}, func(c *Config) bool { return c.Debug }},
	}

	for _, tt := range tests {
		for _, v := range tt.values {
			t.Run(tt.key+"="+v, func(t *testing.T) {
				t.Setenv(tt.key, v)
				cfg := New()
				LoadFromEnv(cfg)
				if !tt.get(cfg) {
					t.Errorf("%s=%s did not set the field", tt.key, v)
				}
			})
		}
	}

	t.Run("false values", func(t *testing.T) {
		t.Setenv("GOSTUNNEL_SELF_SIGNED", "no")
		cfg := New()
		LoadFromEnv(cfg)
		if cfg.SelfSigned {
			t.Error("no should not enable SelfSigned")
		}
	})
}

func TestLoadFromEnv_Durations(t *testing.T) {
	t.Setenv("GOSTUNNEL_DIAL_TIMEOUT", "3")
	t.Setenv("GOSTUNNEL_DRAIN_INTERVAL", "250ms")
	t.Setenv("GOSTUNNEL_STATS_INTERVAL", "1m")

	cfg := New()
	LoadFromEnv(cfg)
	if cfg.DialTimeout != 3*time.Second {
		t.Errorf("DialTimeout = %v", cfg.DialTimeout)
	}
	if cfg.DrainInterval != 250*time.Millisecond {
		t.Errorf("DrainInterval = %v", cfg.DrainInterval)
	}
	if cfg.StatsInterval != time.Minute {
		t.Errorf("StatsInterval = %v", cfg.StatsInterval)
	}
}

func TestLoadFromEnv_Ints(t *testing.T) {
	t.Setenv("GOSTUNNEL_DIAL_RETRIES", "0")
	t.Setenv("GOSTUNNEL_DRAIN_ATTEMPTS", "7")
	t.Setenv("GOSTUNNEL_BANDWIDTH", "1048576")
	t.Setenv("GOSTUNNEL_MAX_CONNS", "64")

	cfg := New()
	LoadFromEnv(cfg)
	if cfg.DialRetries != 0 || cfg.MaxDrainAttempts != 7 {
		t.Errorf("DialRetries = %d, MaxDrainAttempts = %d", cfg.DialRetries, cfg.MaxDrainAttempts)
	}
	if cfg.BandwidthLimit != 1<<20 || cfg.MaxConnections != 64 {
		t.Errorf("BandwidthLimit = %d, MaxConnections = %d", cfg.BandwidthLimit, cfg.MaxConnections)
	}
}

func TestLoadFromEnv_NoOverrideWhenEmpty(t *testing.T) {
	cfg := New()
	cfg.RemoteHost = "keep.example.com"
	LoadFromEnv(cfg)
	if cfg.RemoteHost != "keep.example.com" {
		t.Errorf("RemoteHost = %q, should not change", cfg.RemoteHost)
	}
	if cfg.ServerNameSet {
		t.Error("unset override variable must not mark ServerNameSet")
	}
}

func TestLoadFromEnv_InvalidIgnored(t *testing.T) {
	t.Setenv("GOSTUNNEL_DRAIN_ATTEMPTS", "lots")
	t.Setenv("GOSTUNNEL_DIAL_TIMEOUT", "soon")

	cfg := New()
	LoadFromEnv(cfg)
	if cfg.MaxDrainAttempts != DefaultMaxDrainAttempts {
		t.Errorf("MaxDrainAttempts = %d, want default", cfg.MaxDrainAttempts)
	}
	if cfg.DialTimeout != DefaultDialTimeout {
		t.Errorf("DialTimeout = %v, want default", cfg.DialTimeout)
	}
}

func TestSSHPasswordFromEnv(t *testing.T) {
	t.Setenv("GOSTUNNEL_SSH_PASS", "pw")
	if got := SSHPasswordFromEnv(); got != "pw" {
		t.Errorf("got %q", got)
	}
}
