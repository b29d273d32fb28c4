package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ============================================================================
// frame_listen - Simulator stand-in / frame debug tool
// ============================================================================
// Listens on the UDP port the daemon transmits to, decodes each command
// frame, and prints value changes. Useful for verifying mappings without a
// running simulator.
//
// Usage:
//   frame_listen
//   frame_listen -listen :15192
//   frame_listen -all         (print every frame, not just changes)
// ============================================================================

const (
	frameMagic   byte = 0xA7
	frameVersion byte = 1
)

// functionNames mirrors the daemon's catalogue for readable output.
var functionNames = map[uint16]string{
	1:  "Alerter",
	2:  "Bell",
	3:  "Distance Counter",
	4:  "Dyn Brake Lever",
	5:  "Headlight Front",
	6:  "Headlight Rear",
	8:  "Horn",
	9:  "Independent Brake Lever",
	10: "Independent Bailoff",
	12: "Park-Brake Set",
	13: "Park-Brake Release",
	14: "Reverser Lever",
	15: "Sander",
	16: "Throttle Lever",
	18: "Train Brake Lever",
	19: "Wiper Switch",
	37: "Circuit Breaker Control",
	38: "Circuit Breaker DynBrake",
	39: "Circuit Breaker EngRun",
	41: "Cab Light Switch",
	42: "Step Light Switch",
	43: "Gauge Light Switch",
	44: "EOT Emg Stop",
	52: "HEP Switch",
	55: "Slow Speed Toggle",
	56: "Slow Speed Increment",
	57: "Slow Speed Decrement",
	58: "DPU Throttle Increase",
	59: "DPU Throttle Decrease",
	60: "DPU Dyn-Brake Setup",
	61: "DPU Fence Increase",
	62: "DPU Fence Decrease",
}

func functionName(id uint16) string {
	if name, ok := functionNames[id]; ok {
		return name
	}
	return fmt.Sprintf("function %d", id)
}

func main() {
	var (
		listen  = flag.String("listen", ":15192", "UDP address to listen on")
		showAll = flag.Bool("all", false, "Print every frame instead of only changes")
	)
	flag.Parse()

	addr, err := net.ResolveUDPAddr("udp", *listen)
	if err != nil {
		log.Fatalf("invalid listen address: %v", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	defer conn.Close()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("listening on %s (press Ctrl+C to exit)", conn.LocalAddr())

	// Track last seen values for change detection across frames.
	last := make(map[uint16]uint8)
	seenFirst := false
	frames := 0

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 2048)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			frames++

			values, err := decodeFrame(buf[:n])
			if err != nil {
				fmt.Printf("[BAD FRAME] %v (%d bytes)\n", err, n)
				continue
			}

			if *showAll {
				printFrame(values, frames)
				continue
			}

			// First frame prints every non-zero value; afterwards, deltas only.
			for _, fv := range values {
				prev, known := last[fv.id]
				changed := fv.value != prev
				if (seenFirst && known && changed) || (!seenFirst && fv.value != 0) {
					fmt.Printf("%s [%-23s] %3d\n",
						time.Now().Format("15:04:05.000"), functionName(fv.id), fv.value)
				}
				last[fv.id] = fv.value
			}
			seenFirst = true
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down (received %d frames)", frames)
	case <-done:
		log.Printf("listener closed")
	}
}

type frameValue struct {
	id    uint16
	value uint8
}

// decodeFrame mirrors the daemon's frame layout:
// magic, version, count, then id(u16 BE)+value per function, XOR checksum.
func decodeFrame(b []byte) ([]frameValue, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(b))
	}
	if b[0] != frameMagic {
		return nil, fmt.Errorf("bad magic 0x%02x", b[0])
	}
	if b[1] != frameVersion {
		return nil, fmt.Errorf("unsupported frame version %d", b[1])
	}
	count := int(b[2])
	want := 3 + 3*count + 1
	if len(b) != want {
		return nil, fmt.Errorf("frame length %d, want %d for %d functions", len(b), want, count)
	}

	body := b[:len(b)-1]
	var crc byte
	for _, v := range body {
		crc ^= v
	}
	if crc != b[len(b)-1] {
		return nil, fmt.Errorf("checksum mismatch: got 0x%02x, want 0x%02x", b[len(b)-1], crc)
	}

	values := make([]frameValue, count)
	for i := 0; i < count; i++ {
		off := 3 + 3*i
		values[i] = frameValue{
			id:    binary.BigEndian.Uint16(body[off : off+2]),
			value: body[off+2],
		}
	}
	return values, nil
}

func printFrame(values []frameValue, n int) {
	fmt.Printf("[FRAME %d] %s\n", n, time.Now().Format("15:04:05.000"))
	for _, fv := range values {
		fmt.Printf("  %-23s %3d\n", functionName(fv.id), fv.value)
	}
}
