package main

import (
	"sort"
	"time"
)

// DaemonState is the top-level, daemon-owned state container.
//
// Goals:
//   - Keep all reducer-owned state in one place (pure reducer, no external
//     mutation).
//   - Hold the mapping registry, per-function transform state, the capture
//     state machine, and the daemon's cached view of devices and transmit
//     health.
//   - Make it easy to publish a coherent snapshot to other clients (IPC/WS).
type DaemonState struct {
	// Registry holds the active mappings, at most one per function.
	Registry *Registry

	// Funcs is the per-function transform state (toggle flags, multiway
	// index, last commanded value, shared-axis mode).
	Funcs map[FunctionID]*FunctionState

	// Capture is the capture state machine. At most one capture at a time.
	Capture CaptureState

	// Devices is the last enumerated device set, keyed by device id.
	// Devices that disappear stay here with Connected reported via samples.
	Devices map[int]DeviceInfo

	// Disabled marks devices excluded from transforms and capture.
	// Absence means enabled.
	Disabled map[int]bool

	// Samples is the most recent device poll; capture baselines come from it.
	Samples SampleSet

	// Outputs is the last computed value per function.
	Outputs map[FunctionID]uint8

	// Transmit health, from FrameTransmitted observations.
	TransmitOK    bool
	TransmitKnown bool
	TransmitErr   string
	TransmitAt    time.Time
}

// NewDaemonState returns an empty state container ready for the reducer.
func NewDaemonState() *DaemonState {
	return &DaemonState{
		Registry: NewRegistry(),
		Funcs:    make(map[FunctionID]*FunctionState),
		Devices:  make(map[int]DeviceInfo),
		Disabled: make(map[int]bool),
		Outputs:  make(map[FunctionID]uint8),
	}
}

// DeviceEnabled reports whether a device participates in transforms/capture.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) DeviceEnabled(id int) bool {
	return !s.Disabled[id]
}

// SetDeviceEnabled records the enabled flag for a device.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) SetDeviceEnabled(id int, enabled bool) {
	if enabled {
		delete(s.Disabled, id)
	} else {
		s.Disabled[id] = true
	}
}

// EnabledSet returns the enabled flag per known device id.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) EnabledSet() map[int]bool {
	enabled := make(map[int]bool, len(s.Devices))
	for id := range s.Devices {
		enabled[id] = s.DeviceEnabled(id)
	}
	return enabled
}

// ResetFunctionState discards the transform state for a function so a new
// mapping starts from the type default. Rebinding a shared-axis function also
// drops its frozen value.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) ResetFunctionState(fn FunctionID) {
	delete(s.Funcs, fn)
	delete(s.Outputs, fn)
}

// ApplyMapping installs a mapping and resets the affected function state.
// A lever mapping that pairs a second function resets that side too.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) ApplyMapping(m Mapping) {
	s.Registry.Set(m)
	s.ResetFunctionState(m.Function)
	if lc, ok := m.Config.(LeverConfig); ok && lc.PairedWith != 0 {
		s.ResetFunctionState(lc.PairedWith)
	}
}

// RecordDevices refreshes the cached device set from a poll.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) RecordDevices(samples SampleSet) {
	for id, ds := range samples.Devices {
		s.Devices[id] = ds.Info
	}
}

// MappingRecords renders the active mappings in canonical order for
// persistence and snapshots.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) MappingRecords() []MappingRecord {
	all := s.Registry.All()
	records := make([]MappingRecord, 0, len(all))
	for _, m := range all {
		records = append(records, RecordFromMapping(m))
	}
	return records
}

// ============================================================================
// Snapshot
// ============================================================================

// DeviceStatus is the externally visible state of one device.
type DeviceStatus struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Axes      int    `json:"axes"`
	Buttons   int    `json:"buttons"`
	Hats      int    `json:"hats"`
	Connected bool   `json:"connected"`
	Enabled   bool   `json:"enabled"`
}

// CaptureStatus is the externally visible state of the capture machine.
type CaptureStatus struct {
	Listening bool       `json:"listening"`
	Function  FunctionID `json:"function,omitempty"`
	Deadline  time.Time  `json:"deadline,omitempty"`
}

// StateSnapshot is a coherent copy of the state exposed to clients.
// It carries values, mappings, devices, capture, and transmit health; it
// never aliases reducer-owned maps.
type StateSnapshot struct {
	Values   []FunctionValue `json:"values"`
	Mappings []MappingRecord `json:"mappings"`
	Devices  []DeviceStatus  `json:"devices"`
	Capture  CaptureStatus   `json:"capture"`

	TransmitOK    bool      `json:"transmit_ok"`
	TransmitKnown bool      `json:"transmit_known"`
	TransmitErr   string    `json:"transmit_error,omitempty"`
	TransmitAt    time.Time `json:"transmit_at,omitempty"`
}

// Snapshot builds a StateSnapshot from the current state.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		Values:        BuildFrame(s.Outputs).Values,
		Mappings:      s.MappingRecords(),
		TransmitOK:    s.TransmitOK,
		TransmitKnown: s.TransmitKnown,
		TransmitErr:   s.TransmitErr,
		TransmitAt:    s.TransmitAt,
	}

	ids := make([]int, 0, len(s.Devices))
	for id := range s.Devices {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		info := s.Devices[id]
		connected := false
		if ds, ok := s.Samples.Devices[id]; ok {
			connected = ds.Snap.Connected
		}
		snap.Devices = append(snap.Devices, DeviceStatus{
			ID:        id,
			Name:      info.Name,
			Axes:      info.Axes,
			Buttons:   info.Buttons,
			Hats:      info.Hats,
			Connected: connected,
			Enabled:   s.DeviceEnabled(id),
		})
	}

	if s.Capture.Phase == CaptureListening {
		snap.Capture = CaptureStatus{
			Listening: true,
			Function:  s.Capture.Function,
			Deadline:  s.Capture.Deadline,
		}
	}

	return snap
}
