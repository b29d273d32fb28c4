package main

import "testing"

// TestBuildFrame_CanonicalOrderAndFullCoverage verifies every catalogue
// function appears in catalogue order, with unmapped functions at zero
func TestBuildFrame_CanonicalOrderAndFullCoverage(t *testing.T) {
	outputs := map[FunctionID]uint8{
		FuncThrottleLever: 5,
		FuncBell:          1,
	}
	frame := BuildFrame(outputs)

	specs := Catalogue()
	if len(frame.Values) != len(specs) {
		t.Fatalf("expected %d values, got %d", len(specs), len(frame.Values))
	}
	for i, spec := range specs {
		if frame.Values[i].ID != spec.ID {
			t.Errorf("position %d: expected function %d, got %d", i, spec.ID, frame.Values[i].ID)
		}
	}

	if v, _ := frame.Value(FuncThrottleLever); v != 5 {
		t.Errorf("expected throttle 5, got %d", v)
	}
	if v, _ := frame.Value(FuncHorn); v != 0 {
		t.Errorf("expected unmapped horn at 0, got %d", v)
	}
}

// TestFrame_EncodeDecode verifies the wire layout survives a round trip and
// carries the expected header
func TestFrame_EncodeDecode(t *testing.T) {
	frame := BuildFrame(map[FunctionID]uint8{
		FuncThrottleLever: 8,
		FuncReverserLever: 255,
		FuncBell:          1,
	})
	payload := frame.Encode()

	if payload[0] != frameMagic {
		t.Errorf("expected magic 0x%02x, got 0x%02x", frameMagic, payload[0])
	}
	if payload[1] != frameVersion {
		t.Errorf("expected version %d, got %d", frameVersion, payload[1])
	}
	if int(payload[2]) != len(frame.Values) {
		t.Errorf("expected count %d, got %d", len(frame.Values), payload[2])
	}
	if want := 3 + 3*len(frame.Values) + 1; len(payload) != want {
		t.Errorf("expected %d bytes, got %d", want, len(payload))
	}

	decoded, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded.Values) != len(frame.Values) {
		t.Fatalf("expected %d values after decode, got %d", len(frame.Values), len(decoded.Values))
	}
	for i, fv := range frame.Values {
		if decoded.Values[i] != fv {
			t.Errorf("value %d: expected %+v, got %+v", i, fv, decoded.Values[i])
		}
	}
}

// TestDecodeFrame_RejectsCorruptPayloads verifies the guard rails on inbound
// datagrams
func TestDecodeFrame_RejectsCorruptPayloads(t *testing.T) {
	good := BuildFrame(map[FunctionID]uint8{FuncBell: 1}).Encode()

	if _, err := DecodeFrame(good[:3]); err == nil {
		t.Errorf("expected error for truncated frame")
	}

	bad := append([]byte{}, good...)
	bad[0] = 0x00
	if _, err := DecodeFrame(bad); err == nil {
		t.Errorf("expected error for bad magic")
	}

	bad = append([]byte{}, good...)
	bad[1] = 99
	if _, err := DecodeFrame(bad); err == nil {
		t.Errorf("expected error for unsupported version")
	}

	bad = append([]byte{}, good...)
	bad[5]++ // flip a value byte without fixing the checksum
	if _, err := DecodeFrame(bad); err == nil {
		t.Errorf("expected checksum error")
	}

	bad = append([]byte{}, good...)
	bad = append(bad, 0x00)
	if _, err := DecodeFrame(bad); err == nil {
		t.Errorf("expected length error for trailing bytes")
	}
}
