// Package core is the orchestration layer.  It turns a Config into a
// running tunnel: a Listener that accepts connections and a Pair per
// connection that dials the destination and relays bytes both ways.
//
// Architecture layers (bottom → top):
//
//	reactor, transport  →  relay  →  core  →  cmd (CLI)
//
// Every relay callback runs on the Listener's reactor goroutine.  Only
// blocking work (accept, inbound TLS handshakes, destination dials)
// happens elsewhere, and its results are posted back to the reactor.
package core

import "context"

// Mode is a complete operational mode of gostunnel.  It owns its whole
// lifecycle, from binding to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
