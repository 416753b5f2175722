// Package port implements TCP endpoint probing for simulator detection.
//
// The CARLA simulator exposes an RPC endpoint (port 2000 by default);
// whether something accepts connections there is the most reliable
// readiness signal available without speaking the RPC protocol itself.
// Probing asks the operating system's network stack directly rather than
// parsing /proc/net/* or shelling out to lsof/ss, which may require
// elevated permissions.
package port

import (
	"fmt"
	"net"
	"time"
)

// defaultDialTimeout bounds a single connection probe. The simulator
// runs on localhost (or a LAN host), so anything slower than this is
// indistinguishable from "not listening".
const defaultDialTimeout = 2 * time.Second

// Prober checks whether TCP endpoints accept connections.
//
// The struct is stateless but defined as a struct (rather than bare
// functions) so a custom timeout can be injected and the Prober can be
// passed as a dependency in tests.
type Prober struct {
	// Timeout bounds each probe; zero means defaultDialTimeout.
	Timeout time.Duration
}

// NewProber creates a Prober with the default timeout.
func NewProber() *Prober {
	return &Prober{}
}

// IsListening reports whether something accepts TCP connections at
// host:port. A successful dial is immediately closed — we only needed
// the handshake, not a conversation.
func (p *Prober) IsListening(host string, port int) bool {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close() }()
	return true
}

// WaitListening polls host:port until it accepts connections or the
// deadline passes. Used by `sim start` to report when the simulator is
// actually ready rather than merely spawned — UE4 takes a while to open
// its RPC port.
func (p *Prober) WaitListening(host string, port int, deadline time.Duration, interval time.Duration) bool {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	end := time.Now().Add(deadline)
	for {
		if p.IsListening(host, port) {
			return true
		}
		if time.Now().After(end) {
			return false
		}
		time.Sleep(interval)
	}
}
