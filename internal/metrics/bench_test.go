package metrics

import "testing"

// BenchmarkCollector_PairOpened measures the overhead of recording a
// new pair (atomic operations).
func BenchmarkCollector_PairOpened(b *testing.B) {
	c := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.PairOpened()
	}
}

// BenchmarkCollector_Upstream measures byte-counter overhead on the
// forwarding hot path.
func BenchmarkCollector_Upstream(b *testing.B) {
	c := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Upstream(32768)
	}
}

// BenchmarkCollector_Summary measures rendering the shutdown line.
func BenchmarkCollector_Summary(b *testing.B) {
	c := New()
	c.PairOpened()
	c.Upstream(1 << 20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Summary()
	}
}

// BenchmarkNilCollector measures the nil-receiver fast path.
func BenchmarkNilCollector(b *testing.B) {
	var c *Collector
	for i := 0; i < b.N; i++ {
		c.Upstream(1)
	}
}
