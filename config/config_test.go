package config

import "testing"

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"strip", ModeStrip, false},
		{"WRAP", ModeWrap, false},
		{" wrap ", ModeWrap, false},
		{"", "", true},
		{"proxy", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModeDirections(t *testing.T) {
	if ModeStrip.InboundTLS() || !ModeStrip.OutboundTLS() {
		t.Error("strip is plaintext in, TLS out")
	}
	if !ModeWrap.InboundTLS() || ModeWrap.OutboundTLS() {
		t.Error("wrap is TLS in, plaintext out")
	}
}

func TestParseTunnelSpec(t *testing.T) {
	tests := []struct {
		spec     string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"admin@jump.example.com", "admin", "jump.example.com", 22, false},
		{"admin@jump.example.com:2222", "admin", "jump.example.com", 2222, false},
		{"jump.example.com", "", "jump.example.com", 22, false},
		{"ops@[2001:db8::1]:2200", "ops", "2001:db8::1", 2200, false},
		{"[::1]", "", "::1", 22, false},
		{"user@host:0", "", "", 0, true},
		{"user@host:99999", "", "", 0, true},
		{"", "", "", 0, true},
		{"user@", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			user, host, port, err := ParseTunnelSpec(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got (%q, %q, %d), want (%q, %q, %d)",
					user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestParsePort(t *testing.T) {
	for in, want := range map[string]int{"0": 0, "443": 443, " 8080 ": 8080, "70000": 70000} {
		got, err := ParsePort(in)
		if err != nil || got != want {
			t.Errorf("ParsePort(%q) = %d, %v", in, got, err)
		}
	}
	if _, err := ParsePort("https"); err == nil {
		t.Error("expected error for non-numeric port")
	}
}

func TestNewDefaults(t *testing.T) {
	cfg := New()
	if cfg.RemoteHost != "localhost" || cfg.BindHost != "127.0.0.1" {
		t.Errorf("hosts = %q, %q", cfg.RemoteHost, cfg.BindHost)
	}
	if cfg.DrainInterval != DefaultDrainInterval || cfg.MaxDrainAttempts != 50 {
		t.Errorf("drain = %v x %d", cfg.DrainInterval, cfg.MaxDrainAttempts)
	}
	if cfg.Verbosity() != 1 {
		t.Errorf("Verbosity = %d, want 1", cfg.Verbosity())
	}
}

func TestVerbosity(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{"default", Config{Verbose: 1}, 1},
		{"vv", Config{Verbose: 3}, 3},
		{"debug", Config{Verbose: 1, Debug: true}, 3},
		{"quiet wins", Config{Verbose: 2, Debug: true, Quiet: true}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Verbosity(); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
