package main

import (
	"testing"
	"time"
)

func captureSamples(devices map[int]DeviceSnapshot) SampleSet {
	set := SampleSet{Devices: make(map[int]DeviceSample)}
	for id, snap := range devices {
		snap.Connected = true
		set.Devices[id] = DeviceSample{
			Info: DeviceInfo{ID: id, Axes: len(snap.Axes), Buttons: len(snap.Buttons), Hats: len(snap.Hats)},
			Snap: snap,
		}
	}
	return set
}

func listeningState(fn FunctionID, baseline SampleSet, now time.Time, window time.Duration) CaptureState {
	return startCapture(CaptureState{}, fn, baseline, now, CaptureConfig{Window: window, Activation: 0.7})
}

// TestCaptureStep_ButtonBeatsHatBeatsAxis verifies the kind priority when
// several inputs qualify in the same tick
func TestCaptureStep_ButtonBeatsHatBeatsAxis(t *testing.T) {
	cfg := CaptureConfig{Window: 5 * time.Second, Activation: 0.7}
	now := time.Unix(1000, 0)

	baseline := captureSamples(map[int]DeviceSnapshot{
		0: {Buttons: make([]bool, 4), Hats: make([]uint8, 1), Axes: make([]float64, 2)},
	})
	st := listeningState(FuncBell, baseline, now, cfg.Window)

	current := captureSamples(map[int]DeviceSnapshot{
		0: {
			Buttons: []bool{false, false, true, false},
			Hats:    []uint8{uint8(HatUp)},
			Axes:    []float64{0.9, 0},
		},
	})
	enabled := map[int]bool{0: true}

	_, sel, result, done := captureStep(st, current, enabled, now.Add(time.Second), cfg)
	if !done || result != CaptureResolved {
		t.Fatalf("expected resolved capture, got done=%v result=%q", done, result)
	}
	if sel.Kind != KindButton || sel.Index != 2 {
		t.Errorf("expected button 2 to win, got %v", sel)
	}

	// Same tick without the button: the hat wins over the axis.
	current = captureSamples(map[int]DeviceSnapshot{
		0: {
			Buttons: make([]bool, 4),
			Hats:    []uint8{uint8(HatLeft)},
			Axes:    []float64{0.9, 0},
		},
	})
	_, sel, result, done = captureStep(st, current, enabled, now.Add(time.Second), cfg)
	if !done || result != CaptureResolved {
		t.Fatalf("expected resolved capture, got done=%v result=%q", done, result)
	}
	if sel.Kind != KindHat || sel.Direction != HatLeft {
		t.Errorf("expected hat left to win, got %v", sel)
	}
}

// TestCaptureStep_LowestDeviceThenIndexWins verifies the tie-break across
// devices and within a device
func TestCaptureStep_LowestDeviceThenIndexWins(t *testing.T) {
	cfg := CaptureConfig{Window: 5 * time.Second, Activation: 0.7}
	now := time.Unix(1000, 0)

	baseline := captureSamples(map[int]DeviceSnapshot{
		0: {Buttons: make([]bool, 4)},
		2: {Buttons: make([]bool, 4)},
	})
	st := listeningState(FuncSander, baseline, now, cfg.Window)

	current := captureSamples(map[int]DeviceSnapshot{
		0: {Buttons: []bool{false, true, true, false}},
		2: {Buttons: []bool{true, false, false, false}},
	})
	enabled := map[int]bool{0: true, 2: true}

	_, sel, _, done := captureStep(st, current, enabled, now.Add(time.Second), cfg)
	if !done {
		t.Fatalf("expected capture to resolve")
	}
	if sel.Device != 0 || sel.Index != 1 {
		t.Errorf("expected device 0 button 1 to win the tie, got %v", sel)
	}
}

// TestCaptureStep_HeldInputIsNotFresh verifies inputs already active in the
// baseline never qualify
func TestCaptureStep_HeldInputIsNotFresh(t *testing.T) {
	cfg := CaptureConfig{Window: 5 * time.Second, Activation: 0.7}
	now := time.Unix(1000, 0)

	// Button 0 held and axis 0 resting off-center when listening began.
	baseline := captureSamples(map[int]DeviceSnapshot{
		0: {Buttons: []bool{true, false}, Axes: []float64{0.9}},
	})
	st := listeningState(FuncHorn, baseline, now, cfg.Window)

	current := captureSamples(map[int]DeviceSnapshot{
		0: {Buttons: []bool{true, false}, Axes: []float64{0.9}},
	})
	enabled := map[int]bool{0: true}

	next, _, _, done := captureStep(st, current, enabled, now.Add(time.Second), cfg)
	if done {
		t.Fatalf("held inputs must not resolve a capture")
	}
	if next.Phase != CaptureListening {
		t.Errorf("expected capture to keep listening, got %q", next.Phase)
	}

	// A fresh press on the other button does qualify.
	current = captureSamples(map[int]DeviceSnapshot{
		0: {Buttons: []bool{true, true}, Axes: []float64{0.9}},
	})
	_, sel, result, done := captureStep(st, current, enabled, now.Add(2*time.Second), cfg)
	if !done || result != CaptureResolved {
		t.Fatalf("expected fresh press to resolve, got done=%v result=%q", done, result)
	}
	if sel.Index != 1 {
		t.Errorf("expected button 1, got %v", sel)
	}
}

// TestCaptureStep_Timeout verifies the window expiring yields a timed_out
// result and an idle state
func TestCaptureStep_Timeout(t *testing.T) {
	cfg := CaptureConfig{Window: 5 * time.Second, Activation: 0.7}
	now := time.Unix(1000, 0)

	baseline := captureSamples(map[int]DeviceSnapshot{
		0: {Buttons: make([]bool, 2)},
	})
	st := listeningState(FuncBell, baseline, now, cfg.Window)
	enabled := map[int]bool{0: true}

	// One tick before the deadline: still listening.
	quiet := captureSamples(map[int]DeviceSnapshot{0: {Buttons: make([]bool, 2)}})
	next, _, _, done := captureStep(st, quiet, enabled, now.Add(cfg.Window-time.Millisecond), cfg)
	if done {
		t.Fatalf("capture ended before the deadline")
	}

	// At the deadline: timed out.
	next, _, result, done := captureStep(next, quiet, enabled, now.Add(cfg.Window), cfg)
	if !done || result != CaptureTimedOut {
		t.Fatalf("expected timeout at the deadline, got done=%v result=%q", done, result)
	}
	if next.Phase != CaptureIdle {
		t.Errorf("expected idle state after timeout, got %q", next.Phase)
	}
}

// TestCaptureStep_ActivationOnFinalTickWins verifies detection runs before
// the deadline check within a tick
func TestCaptureStep_ActivationOnFinalTickWins(t *testing.T) {
	cfg := CaptureConfig{Window: 5 * time.Second, Activation: 0.7}
	now := time.Unix(1000, 0)

	baseline := captureSamples(map[int]DeviceSnapshot{
		0: {Buttons: make([]bool, 2)},
	})
	st := listeningState(FuncBell, baseline, now, cfg.Window)

	pressed := captureSamples(map[int]DeviceSnapshot{
		0: {Buttons: []bool{true, false}},
	})
	enabled := map[int]bool{0: true}

	// The press lands exactly on the deadline tick.
	_, sel, result, done := captureStep(st, pressed, enabled, now.Add(cfg.Window), cfg)
	if !done || result != CaptureResolved {
		t.Fatalf("expected the final-tick press to resolve, got done=%v result=%q", done, result)
	}
	if sel.Kind != KindButton || sel.Index != 0 {
		t.Errorf("expected button 0, got %v", sel)
	}
}

// TestCaptureStep_DisabledDeviceIgnored verifies disabled devices cannot
// resolve a capture
func TestCaptureStep_DisabledDeviceIgnored(t *testing.T) {
	cfg := CaptureConfig{Window: 5 * time.Second, Activation: 0.7}
	now := time.Unix(1000, 0)

	baseline := captureSamples(map[int]DeviceSnapshot{
		0: {Buttons: make([]bool, 2)},
		1: {Buttons: make([]bool, 2)},
	})
	st := listeningState(FuncBell, baseline, now, cfg.Window)

	current := captureSamples(map[int]DeviceSnapshot{
		0: {Buttons: []bool{true, false}},
		1: {Buttons: []bool{false, true}},
	})
	enabled := map[int]bool{0: false, 1: true}

	_, sel, _, done := captureStep(st, current, enabled, now.Add(time.Second), cfg)
	if !done {
		t.Fatalf("expected the enabled device to resolve the capture")
	}
	if sel.Device != 1 {
		t.Errorf("expected device 1 (device 0 disabled), got %v", sel)
	}
}

// TestCaptureStep_HatDirectionRecorded verifies the resolved selector carries
// the specific direction that activated
func TestCaptureStep_HatDirectionRecorded(t *testing.T) {
	cfg := CaptureConfig{Window: 5 * time.Second, Activation: 0.7}
	now := time.Unix(1000, 0)

	baseline := captureSamples(map[int]DeviceSnapshot{
		0: {Hats: []uint8{0}},
	})
	st := listeningState(FuncWiperSwitch, baseline, now, cfg.Window)

	current := captureSamples(map[int]DeviceSnapshot{
		0: {Hats: []uint8{uint8(HatDown)}},
	})
	enabled := map[int]bool{0: true}

	_, sel, _, done := captureStep(st, current, enabled, now.Add(time.Second), cfg)
	if !done {
		t.Fatalf("expected hat press to resolve")
	}
	if sel.Kind != KindHat || sel.Direction != HatDown {
		t.Errorf("expected hat down selector, got %v", sel)
	}
}

// TestCaptureStep_IdleIsNoop verifies stepping an idle capture does nothing
func TestCaptureStep_IdleIsNoop(t *testing.T) {
	cfg := CaptureConfig{Window: 5 * time.Second, Activation: 0.7}

	pressed := captureSamples(map[int]DeviceSnapshot{
		0: {Buttons: []bool{true}},
	})
	next, _, _, done := captureStep(CaptureState{Phase: CaptureIdle}, pressed, map[int]bool{0: true}, time.Now(), cfg)
	if done {
		t.Errorf("idle capture must not produce a result")
	}
	if next.Phase != CaptureIdle {
		t.Errorf("expected idle state to persist, got %q", next.Phase)
	}
}
