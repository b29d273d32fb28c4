package main

// ============================================================================
// Device Snapshot Source
// ============================================================================
// The daemon treats device access as an external collaborator: something that
// can enumerate devices and produce a raw snapshot of each one on demand.
// The Linux joystick backend lives in input_linux.go; tests use fakeSource.

// DeviceInfo describes one input device's capabilities.
type DeviceInfo struct {
	ID      int
	Name    string
	Axes    int
	Buttons int
	Hats    int
}

// DeviceSnapshot is one device's raw state at a tick boundary.
// Axes are normalized to [-1, 1]; hats are HatDirection bitmasks.
type DeviceSnapshot struct {
	Connected bool
	Axes      []float64
	Buttons   []bool
	Hats      []uint8
}

// NeutralSnapshot returns an all-neutral snapshot sized to the device's
// capabilities. Disconnected and disabled devices sample as neutral.
func NeutralSnapshot(info DeviceInfo) DeviceSnapshot {
	return DeviceSnapshot{
		Axes:    make([]float64, info.Axes),
		Buttons: make([]bool, info.Buttons),
		Hats:    make([]uint8, info.Hats),
	}
}

// DeviceSample pairs a device's identity with its snapshot for one tick.
type DeviceSample struct {
	Info DeviceInfo
	Snap DeviceSnapshot
}

// SampleSet is the full raw input picture at one tick boundary.
type SampleSet struct {
	Devices map[int]DeviceSample
}

// Snapshot returns the snapshot for a device, reporting whether the device
// was present in this tick's sample set.
func (s SampleSet) Snapshot(device int) (DeviceSnapshot, bool) {
	d, ok := s.Devices[device]
	if !ok {
		return DeviceSnapshot{}, false
	}
	return d.Snap, true
}

// selectorActive reports whether a button or hat selector is currently
// engaged in the snapshot. Axis selectors have no boolean notion of active
// by themselves; callers use selectorAxis plus a threshold.
func selectorActive(sel Selector, snap DeviceSnapshot) bool {
	switch sel.Kind {
	case KindButton:
		return sel.Index < len(snap.Buttons) && snap.Buttons[sel.Index]
	case KindHat:
		return sel.Index < len(snap.Hats) && snap.Hats[sel.Index]&uint8(sel.Direction) != 0
	}
	return false
}

// selectorAxis returns the raw axis value for an axis selector, clamped to
// [-1, 1]. Out-of-bounds indexes read as neutral.
func selectorAxis(sel Selector, snap DeviceSnapshot) float64 {
	if sel.Kind != KindAxis || sel.Index >= len(snap.Axes) {
		return 0
	}
	return clampAxis(snap.Axes[sel.Index])
}

func clampAxis(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// DeviceSource is the external collaborator that owns device access.
// Sample must not block on a disconnected device; it reports ok=false and
// the daemon freezes outputs mapped to that device.
type DeviceSource interface {
	// Devices enumerates currently known devices.
	Devices() []DeviceInfo

	// Sample reads the current raw state of one device. ok is false when
	// the device is disconnected or cannot be read this tick.
	Sample(id int) (DeviceSnapshot, bool)

	// Close releases any underlying handles.
	Close() error
}

// pollDevices reads a full SampleSet from the source, substituting neutral
// snapshots for devices that fail to sample. The disabled set is applied by
// the reducer, not here: enable/disable is daemon policy, not device state.
func pollDevices(src DeviceSource) SampleSet {
	set := SampleSet{Devices: make(map[int]DeviceSample)}
	for _, info := range src.Devices() {
		snap, ok := src.Sample(info.ID)
		if !ok {
			snap = NeutralSnapshot(info)
			snap.Connected = false
		}
		set.Devices[info.ID] = DeviceSample{Info: info, Snap: snap}
	}
	return set
}
