package main

import "math"

// ============================================================================
// Value Transformer
// ============================================================================
// Pure per-function step logic: (raw sample, mapping, prior state) -> (value,
// next state). No I/O, no hidden state inside callables; everything a step
// needs across ticks lives in FunctionState, keyed by function id.

// FunctionState is the persisted per-function state needed to compute the
// next output from the next raw sample.
type FunctionState struct {
	// PrevActive is the previous raw boolean of the bound input, for edge
	// detection on toggle/multiway inputs.
	PrevActive bool

	// Index is the current discrete state index (toggle: 0/1, multiway:
	// 0..N-1).
	Index int

	// Value is the current output value as encoded on the wire. It is held
	// when the device is unavailable and frozen by shared-axis mode switches.
	Value uint8

	// AltMode is set on the primary of a mode-toggle pair while the axis is
	// driving the paired function instead of this one.
	AltMode bool

	// PrevModeActive is the previous raw boolean of the mode-toggle input.
	PrevModeActive bool
}

// TransformConfig carries the global transform tuning knobs.
type TransformConfig struct {
	// Activation is the magnitude an axis must exceed to count as "pressed"
	// when bound to a momentary/toggle/multiway function.
	Activation float64

	// Deadzone is the default lever dead-zone applied to bindings the capture
	// flow creates.
	Deadzone float64
}

// stepMomentary returns 1 while the input is active, 0 otherwise.
func stepMomentary(active bool, st FunctionState) (uint8, FunctionState) {
	st.PrevActive = active
	if active {
		st.Value = 1
	} else {
		st.Value = 0
	}
	return st.Value, st
}

// stepToggle flips the persisted output on each rising edge and holds it
// otherwise.
func stepToggle(active bool, st FunctionState) (uint8, FunctionState) {
	if active && !st.PrevActive {
		st.Index = 1 - st.Index
	}
	st.PrevActive = active
	st.Value = uint8(st.Index)
	return st.Value, st
}

// stepMultiway advances the state index on each rising edge: modulo N in
// cyclic mode, or directly to the configured target in absolute mode.
func stepMultiway(active bool, cfg MultiwayConfig, st FunctionState) (uint8, FunctionState) {
	if active && !st.PrevActive {
		if cfg.Cyclic {
			st.Index = (st.Index + 1) % cfg.States
		} else {
			st.Index = cfg.JumpTo
		}
	}
	st.PrevActive = active
	st.Value = uint8(st.Index)
	return st.Value, st
}

// leverPosition applies reversal, dead-zone and clamping to a raw axis value,
// yielding the normalized lever position in [-1, 1].
func leverPosition(raw float64, cfg LeverConfig) float64 {
	pos := clampAxis(raw)
	if cfg.Reverse {
		pos = -pos
	}
	if cfg.Deadzone > 0 && math.Abs(pos) < cfg.Deadzone {
		pos = 0
	}
	return pos
}

// scaleLever encodes a normalized position through a function's lever profile.
func scaleLever(pos float64, spec *FunctionSpec) uint8 {
	switch spec.Profile {
	case ProfileNotched:
		n := spec.Notches
		if n <= 0 {
			n = 8
		}
		notch := int(math.Round((pos + 1) / 2 * float64(n)))
		if notch < 0 {
			notch = 0
		}
		if notch > n {
			notch = n
		}
		return uint8(notch)

	case ProfileGate3:
		switch {
		case pos <= -reverserGate:
			return 0
		case pos >= reverserGate:
			return 255
		default:
			return 127
		}

	case ProfileDetented:
		// Hard OFF detent at the bottom of travel, 1..255 above it.
		if pos <= dynBrakeDetent {
			return 0
		}
		norm := (pos - dynBrakeDetent) / (1 - dynBrakeDetent)
		if norm > 1 {
			norm = 1
		}
		return uint8(math.Round(norm*254)) + 1

	default: // ProfileContinuous
		v := math.Round((pos + 1) / 2 * 255)
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		return uint8(v)
	}
}

// stepLever computes a standalone lever's output.
func stepLever(raw float64, cfg LeverConfig, spec *FunctionSpec, st FunctionState) (uint8, FunctionState) {
	st.Value = scaleLever(leverPosition(raw, cfg), spec)
	return st.Value, st
}

// splitPositions maps one raw axis value onto the two halves of a split-axis
// pair. Values above the split drive the upper side over its full range while
// the lower side is exactly neutral, and symmetrically below the split.
func splitPositions(raw float64, split float64) (upper, lower float64) {
	raw = clampAxis(raw)
	if raw > split {
		span := 1 - split
		if span <= 0 {
			return 1, -1
		}
		return (raw-split)/span*2 - 1, -1
	}
	if raw < split {
		span := split + 1
		if span <= 0 {
			return -1, 1
		}
		return -1, (split-raw)/span*2 - 1
	}
	return -1, -1
}

// stepSplitLever computes both outputs of a split-axis pair. The primary is
// the mapped (upper) side; the paired function takes the lower half.
func stepSplitLever(raw float64, cfg LeverConfig, primary, paired *FunctionSpec,
	primarySt, pairedSt FunctionState) (uint8, uint8, FunctionState, FunctionState) {

	pos := leverPosition(raw, cfg)
	split := 0.0
	if cfg.Split != nil {
		split = *cfg.Split
	}
	upper, lower := splitPositions(pos, split)
	primarySt.Value = scaleLever(upper, primary)
	pairedSt.Value = scaleLever(lower, paired)
	return primarySt.Value, pairedSt.Value, primarySt, pairedSt
}

// stepModeLever computes a shared-axis pair with a mode-toggle input. The
// axis drives exactly one side; the other side's output stays frozen at its
// last commanded value. Switching modes never alters the frozen value, only
// which side the axis subsequently updates.
func stepModeLever(raw float64, modeActive bool, cfg LeverConfig, primary, paired *FunctionSpec,
	primarySt, pairedSt FunctionState) (uint8, uint8, FunctionState, FunctionState) {

	if modeActive && !primarySt.PrevModeActive {
		primarySt.AltMode = !primarySt.AltMode
	}
	primarySt.PrevModeActive = modeActive

	pos := leverPosition(raw, cfg)
	if primarySt.AltMode {
		pairedSt.Value = scaleLever(pos, paired)
	} else {
		primarySt.Value = scaleLever(pos, primary)
	}
	return primarySt.Value, pairedSt.Value, primarySt, pairedSt
}

// axisActive reports whether an axis used as a button-like input is engaged.
func axisActive(raw float64, activation float64) bool {
	return math.Abs(raw) > activation
}

// boundActive resolves the boolean "is this input engaged" question for any
// selector kind, using the activation threshold for axes.
func boundActive(sel Selector, snap DeviceSnapshot, cfg TransformConfig) bool {
	if sel.Kind == KindAxis {
		return axisActive(selectorAxis(sel, snap), cfg.Activation)
	}
	return selectorActive(sel, snap)
}

// stepFunction advances one mapped function for one tick. It writes the new
// output(s) into outputs and the updated state(s) into states. A mapping
// whose device snapshot is unavailable yields no update: the previous output
// stays frozen.
func stepFunction(m Mapping, samples SampleSet, enabled map[int]bool,
	cfg TransformConfig, states map[FunctionID]*FunctionState, outputs map[FunctionID]uint8) {

	spec, ok := LookupFunction(m.Function)
	if !ok {
		return
	}
	snap, present := samples.Snapshot(m.Selector.Device)
	if !present || !snap.Connected || !enabled[m.Selector.Device] {
		return // DeviceUnavailable: hold last value
	}

	st := states[m.Function]
	if st == nil {
		st = &FunctionState{}
		states[m.Function] = st
	}

	switch m.Type {
	case TypeMomentary:
		v, next := stepMomentary(boundActive(m.Selector, snap, cfg), *st)
		*st = next
		outputs[m.Function] = v

	case TypeToggle:
		v, next := stepToggle(boundActive(m.Selector, snap, cfg), *st)
		*st = next
		outputs[m.Function] = v

	case TypeMultiway:
		mc, ok := m.Config.(MultiwayConfig)
		if !ok {
			return
		}
		v, next := stepMultiway(boundActive(m.Selector, snap, cfg), mc, *st)
		*st = next
		outputs[m.Function] = v

	case TypeLever:
		lc, ok := m.Config.(LeverConfig)
		if !ok {
			return
		}
		raw := selectorAxis(m.Selector, snap)

		if lc.PairedWith != 0 {
			paired, ok := LookupFunction(lc.PairedWith)
			if !ok {
				return
			}
			pairedSt := states[lc.PairedWith]
			if pairedSt == nil {
				pairedSt = &FunctionState{}
				states[lc.PairedWith] = pairedSt
			}

			if lc.ModeToggle != nil {
				modeSnap := snap
				if lc.ModeToggle.Device != m.Selector.Device {
					var ok bool
					modeSnap, ok = samples.Snapshot(lc.ModeToggle.Device)
					if !ok || !modeSnap.Connected || !enabled[lc.ModeToggle.Device] {
						// Mode input unavailable: keep driving the current side.
						modeSnap = DeviceSnapshot{}
					}
				}
				modeActive := boundActive(*lc.ModeToggle, modeSnap, cfg)
				pv, qv, nextP, nextQ := stepModeLever(raw, modeActive, lc, spec, paired, *st, *pairedSt)
				*st = nextP
				*pairedSt = nextQ
				outputs[m.Function] = pv
				outputs[lc.PairedWith] = qv
				return
			}

			pv, qv, nextP, nextQ := stepSplitLever(raw, lc, spec, paired, *st, *pairedSt)
			*st = nextP
			*pairedSt = nextQ
			outputs[m.Function] = pv
			outputs[lc.PairedWith] = qv
			return
		}

		v, next := stepLever(raw, lc, spec, *st)
		*st = next
		outputs[m.Function] = v
	}
}

// transformAll runs the value transformer over every bound function in
// canonical order, updating outputs in place.
func transformAll(reg *Registry, samples SampleSet, enabled map[int]bool,
	cfg TransformConfig, states map[FunctionID]*FunctionState, outputs map[FunctionID]uint8) {

	for _, spec := range Catalogue() {
		m, ok := reg.Get(spec.ID)
		if !ok {
			continue
		}
		stepFunction(m, samples, enabled, cfg, states, outputs)
	}
}
