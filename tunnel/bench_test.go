package tunnel

import (
	"context"
	"io"
	"testing"

	"gostunnel/util"
)

// BenchmarkSSHTunnel_Throughput measures echo throughput over one
// direct-tcpip channel.
func BenchmarkSSHTunnel_Throughput(b *testing.B) {
	j := startJumpHost(b)
	echo := startEcho(b)

	tun := NewSSHTunnel(j.config(b), util.Discard())
	if err := tun.Connect(context.Background()); err != nil {
		b.Fatal(err)
	}
	defer tun.Close()

	conn, err := tun.Dial(context.Background(), "tcp", echo)
	if err != nil {
		b.Fatal(err)
	}
	defer conn.Close()

	payload := make([]byte, 32*1024)
	reply := make([]byte, len(payload))
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := conn.Write(payload); err != nil {
			b.Fatal(err)
		}
		if _, err := io.ReadFull(conn, reply); err != nil {
			b.Fatal(err)
		}
	}
}
