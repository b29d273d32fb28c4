package main

import (
	"encoding/binary"
	"fmt"
)

// ============================================================================
// Command Frame
// ============================================================================
// One frame per tick carries every function's current value in canonical
// catalogue order. Layout (big-endian, matching the simulator's conventions):
//
//	byte 0      magic (0xA7)
//	byte 1      protocol version (1)
//	byte 2      function count
//	3 bytes per function: id (uint16) + value (uint8)
//	last byte   XOR checksum of all preceding bytes
//
// Frames are transient encoding units: built, sent, discarded. A lost frame
// is superseded by the next tick's frame.

const (
	frameMagic   byte = 0xA7
	frameVersion byte = 1
)

// FunctionValue is one function's encoded output value.
type FunctionValue struct {
	ID    FunctionID `json:"id"`
	Value uint8      `json:"value"`
}

// Frame is the ordered value set for one tick.
type Frame struct {
	Values []FunctionValue
}

// BuildFrame assembles a frame from the current outputs, in canonical
// catalogue order. Unmapped functions are included at their zero value so the
// schema stays fixed.
func BuildFrame(outputs map[FunctionID]uint8) Frame {
	specs := Catalogue()
	values := make([]FunctionValue, 0, len(specs))
	for _, spec := range specs {
		values = append(values, FunctionValue{ID: spec.ID, Value: outputs[spec.ID]})
	}
	return Frame{Values: values}
}

// xorChecksum is the simulator's checksum convention: XOR of every byte.
func xorChecksum(b []byte) byte {
	var crc byte
	for _, v := range b {
		crc ^= v
	}
	return crc
}

// Encode serializes the frame into a datagram payload.
func (f Frame) Encode() []byte {
	buf := make([]byte, 0, 3+3*len(f.Values)+1)
	buf = append(buf, frameMagic, frameVersion, byte(len(f.Values)))
	for _, fv := range f.Values {
		buf = binary.BigEndian.AppendUint16(buf, uint16(fv.ID))
		buf = append(buf, fv.Value)
	}
	buf = append(buf, xorChecksum(buf))
	return buf
}

// DecodeFrame parses a datagram payload back into a Frame.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < 4 {
		return Frame{}, fmt.Errorf("frame too short: %d bytes", len(b))
	}
	if b[0] != frameMagic {
		return Frame{}, fmt.Errorf("bad magic 0x%02x", b[0])
	}
	if b[1] != frameVersion {
		return Frame{}, fmt.Errorf("unsupported frame version %d", b[1])
	}
	count := int(b[2])
	want := 3 + 3*count + 1
	if len(b) != want {
		return Frame{}, fmt.Errorf("frame length %d, want %d for %d functions", len(b), want, count)
	}
	body := b[:len(b)-1]
	if crc := xorChecksum(body); crc != b[len(b)-1] {
		return Frame{}, fmt.Errorf("checksum mismatch: got 0x%02x, want 0x%02x", b[len(b)-1], crc)
	}

	values := make([]FunctionValue, count)
	for i := 0; i < count; i++ {
		off := 3 + 3*i
		values[i] = FunctionValue{
			ID:    FunctionID(binary.BigEndian.Uint16(body[off : off+2])),
			Value: body[off+2],
		}
	}
	return Frame{Values: values}, nil
}

// Value returns the value for a function id within the frame.
func (f Frame) Value(id FunctionID) (uint8, bool) {
	for _, fv := range f.Values {
		if fv.ID == id {
			return fv.Value, true
		}
	}
	return 0, false
}
