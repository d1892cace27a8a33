package metrics

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func TestCollector_Pairs(t *testing.T) {
	c := New()

	c.PairOpened()
	c.PairOpened()
	if c.ActivePairs() != 2 {
		t.Errorf("active = %d, want 2", c.ActivePairs())
	}
	if c.TotalPairs() != 2 {
		t.Errorf("total = %d, want 2", c.TotalPairs())
	}

	c.PairClosed()
	if c.ActivePairs() != 1 {
		t.Errorf("active = %d, want 1", c.ActivePairs())
	}
	if c.TotalPairs() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalPairs())
	}
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.Upstream(1024)
	c.Downstream(512)
	c.Upstream(100)
	c.Discarded(7)

	if c.BytesUpstream() != 1124 {
		t.Errorf("upstream = %d, want 1124", c.BytesUpstream())
	}
	if c.BytesDownstream() != 512 {
		t.Errorf("downstream = %d, want 512", c.BytesDownstream())
	}
	if c.BytesDiscarded() != 7 {
		t.Errorf("discarded = %d, want 7", c.BytesDiscarded())
	}
}

func TestCollector_Failures(t *testing.T) {
	c := New()
	c.DialFailed()
	c.HandshakeFailed()
	c.HandshakeFailed()
	c.DrainRetry()
	c.DrainRetry()
	c.DrainRetry()
	c.ForcedClose()
	c.TunnelReconnect()

	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"dial", c.DialFailures(), 1},
		{"handshake", c.HandshakeFailures(), 2},
		{"drain", c.DrainRetries(), 3},
		{"forced", c.ForcedCloses(), 1},
		{"reconnect", c.TunnelReconnects(), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()
	c.RecordError("close 127.0.0.1:443: input/output error")

	if c.ErrorCount() != 1 {
		t.Errorf("errors = %d, want 1", c.ErrorCount())
	}
	s := c.Snapshot()
	if s.LastErrorMessage != "close 127.0.0.1:443: input/output error" {
		t.Errorf("last error = %q", s.LastErrorMessage)
	}
	if s.LastError == "" {
		t.Error("last error timestamp should be set")
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.PairOpened()
	c.Upstream(42)

	var s Snapshot
	if err := json.Unmarshal([]byte(c.JSON()), &s); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if s.PairsActive != 1 || s.BytesUpstream != 42 {
		t.Errorf("unexpected snapshot %+v", s)
	}
}

func TestCollector_Summary(t *testing.T) {
	c := New()
	c.PairOpened()
	c.Upstream(2048)

	sum := c.Summary()
	if !strings.HasPrefix(sum, "pairs 1 active / 1 total") {
		t.Errorf("summary = %q", sum)
	}
	if !strings.Contains(sum, "dial failures 0") {
		t.Errorf("summary missing dial failures: %q", sum)
	}
}

// TestCollector_Concurrent verifies counters under parallel updates
// from many reader goroutines.
func TestCollector_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Upstream(1)
				c.Downstream(2)
			}
		}()
	}
	wg.Wait()
	if c.BytesUpstream() != 5000 || c.BytesDownstream() != 10000 {
		t.Errorf("up=%d down=%d", c.BytesUpstream(), c.BytesDownstream())
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector
	c.PairOpened()
	c.PairClosed()
	c.Upstream(1)
	c.Downstream(1)
	c.Discarded(1)
	c.DialFailed()
	c.HandshakeFailed()
	c.DrainRetry()
	c.ForcedClose()
	c.TunnelReconnect()
	c.RecordError("x")

	if c.ActivePairs() != 0 || c.ErrorCount() != 0 || c.BytesUpstream() != 0 {
		t.Error("nil collector should report zeros")
	}
	if s := c.Snapshot(); s.PairsTotal != 0 {
		t.Errorf("nil snapshot = %+v", s)
	}
	_ = c.Summary()
}
