package main

import (
	"fmt"
	"log/slog"
	"net"
)

// Transmitter sends one frame datagram per tick to the simulator.
// Fire-and-forget: no handshake, no acks, no retransmission. Send failures
// are reported once per error streak so an unreachable simulator does not
// flood the log at tick rate.
type Transmitter struct {
	conn   *net.UDPConn
	target string
	logger *slog.Logger

	failing bool
}

// NewTransmitter resolves the target and opens an unconnected UDP socket.
func NewTransmitter(host string, port int, logger *slog.Logger) (*Transmitter, error) {
	target := fmt.Sprintf("%s:%d", host, port)
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %s: %w", target, err)
	}
	return &Transmitter{conn: conn, target: target, logger: logger}, nil
}

// Send transmits one encoded frame. The returned error is also reflected in
// the transmitter's failing flag; the caller decides what status to surface.
func (t *Transmitter) Send(payload []byte) error {
	_, err := t.conn.Write(payload)
	if err != nil {
		if !t.failing {
			t.logger.Warn("frame transmit failed", "target", t.target, "error", err)
			t.failing = true
		}
		return err
	}
	if t.failing {
		t.logger.Info("frame transmit recovered", "target", t.target)
		t.failing = false
	}
	return nil
}

// Target returns the configured destination address.
func (t *Transmitter) Target() string { return t.target }

// Close releases the socket.
func (t *Transmitter) Close() error {
	return t.conn.Close()
}
