package main

import (
	"math"
	"time"
)

// ============================================================================
// Capture Controller
// ============================================================================
// Binds a function to the next deliberate raw input inside a bounded window.
// Modeled as a state machine polled once per tick: no timer goroutine, no
// blocking wait. The baseline snapshot taken when listening begins is what
// "fresh activation" is judged against, not the live function state.

// CapturePhase is the controller's current phase.
type CapturePhase string

const (
	CaptureIdle      CapturePhase = "idle"
	CaptureListening CapturePhase = "listening"
)

// CaptureResult is the terminal outcome of one capture attempt.
type CaptureResult string

const (
	CaptureResolved  CaptureResult = "resolved"
	CaptureTimedOut  CaptureResult = "timed_out"
	CaptureCancelled CaptureResult = "cancelled"
)

// CaptureConfig tunes the capture window.
type CaptureConfig struct {
	// Window is how long the controller listens before timing out.
	Window time.Duration

	// Activation is the magnitude an axis must move away from its baseline
	// rest position to qualify as a deliberate activation.
	Activation float64
}

// CaptureState is the controller's reducer-owned state.
type CaptureState struct {
	Phase    CapturePhase
	Function FunctionID
	Deadline time.Time

	// Baseline is the raw sample set captured when listening began.
	Baseline SampleSet
}

// startCapture transitions Idle -> Listening with the deadline fixed now.
// The baseline is taken from the most recent tick's samples.
func startCapture(st CaptureState, fn FunctionID, baseline SampleSet, now time.Time, cfg CaptureConfig) CaptureState {
	st.Phase = CaptureListening
	st.Function = fn
	st.Deadline = now.Add(cfg.Window)
	st.Baseline = baseline
	return st
}

// cancelCapture transitions to Idle without binding.
func cancelCapture(st CaptureState) CaptureState {
	return CaptureState{Phase: CaptureIdle}
}

// captureStep inspects one tick's samples while listening. It returns the
// next state, the selector that qualified (if any), and the terminal result
// when the attempt ended this tick (resolved or timed out).
//
// Tie-break when several inputs qualify in the same tick: buttons beat hats
// beat axes; within a kind, the lowest device id then lowest index wins.
func captureStep(st CaptureState, samples SampleSet, enabled map[int]bool, now time.Time, cfg CaptureConfig) (CaptureState, Selector, CaptureResult, bool) {
	if st.Phase != CaptureListening {
		return st, Selector{}, "", false
	}

	if sel, ok := detectActivation(st.Baseline, samples, enabled, cfg.Activation); ok {
		return CaptureState{Phase: CaptureIdle}, sel, CaptureResolved, true
	}

	if !now.Before(st.Deadline) {
		return CaptureState{Phase: CaptureIdle}, Selector{}, CaptureTimedOut, true
	}

	return st, Selector{}, "", false
}

// detectActivation finds the highest-priority input that freshly activated
// relative to the baseline.
func detectActivation(baseline, current SampleSet, enabled map[int]bool, activation float64) (Selector, bool) {
	if sel, ok := scanButtons(baseline, current, enabled); ok {
		return sel, true
	}
	if sel, ok := scanHats(baseline, current, enabled); ok {
		return sel, true
	}
	return scanAxes(baseline, current, enabled, activation)
}

func eligibleDevices(current SampleSet, enabled map[int]bool) []int {
	ids := make([]int, 0, len(current.Devices))
	for id, d := range current.Devices {
		if enabled[id] && d.Snap.Connected {
			ids = append(ids, id)
		}
	}
	// Deterministic ordering so the lowest device id wins ties.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

func scanButtons(baseline, current SampleSet, enabled map[int]bool) (Selector, bool) {
	for _, id := range eligibleDevices(current, enabled) {
		snap := current.Devices[id].Snap
		base, _ := baseline.Snapshot(id)
		for i, pressed := range snap.Buttons {
			was := i < len(base.Buttons) && base.Buttons[i]
			if pressed && !was {
				return Selector{Device: id, Kind: KindButton, Index: i}, true
			}
		}
	}
	return Selector{}, false
}

func scanHats(baseline, current SampleSet, enabled map[int]bool) (Selector, bool) {
	dirs := []HatDirection{HatUp, HatRight, HatDown, HatLeft}
	for _, id := range eligibleDevices(current, enabled) {
		snap := current.Devices[id].Snap
		base, _ := baseline.Snapshot(id)
		for i, mask := range snap.Hats {
			var was uint8
			if i < len(base.Hats) {
				was = base.Hats[i]
			}
			for _, d := range dirs {
				if mask&uint8(d) != 0 && was&uint8(d) == 0 {
					return Selector{Device: id, Kind: KindHat, Index: i, Direction: d}, true
				}
			}
		}
	}
	return Selector{}, false
}

func scanAxes(baseline, current SampleSet, enabled map[int]bool, activation float64) (Selector, bool) {
	for _, id := range eligibleDevices(current, enabled) {
		snap := current.Devices[id].Snap
		base, _ := baseline.Snapshot(id)
		for i, v := range snap.Axes {
			var rest float64
			if i < len(base.Axes) {
				rest = base.Axes[i]
			}
			if math.Abs(v) > activation && math.Abs(v-rest) > activation {
				return Selector{Device: id, Kind: KindAxis, Index: i}, true
			}
		}
	}
	return Selector{}, false
}
