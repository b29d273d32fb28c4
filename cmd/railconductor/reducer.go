package main

import (
	"fmt"
	"reflect"
	"time"
)

// This file implements the reducer-style architecture building blocks:
//
//   - Commands: side effects requested by the reducer (device polls, UDP
//     transmits, mapping file I/O, snapshot delivery)
//   - Broadcasts: state-change notifications fanned out to WS clients
//   - Reduce(): computes next state + commands + broadcasts, without I/O
//
// IMPORTANT:
// The reducer must be pure. It must NOT touch the device source, the socket,
// or the filesystem. All of that lives in the effects layer; results come
// back as Events.
//
// The daemon loop is responsible for executing Commands and feeding
// observations back as Events.

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
type Command interface {
	commandMarker()
	String() string
}

// CmdSampleDevices requests one poll of the device source.
type CmdSampleDevices struct{}

func (CmdSampleDevices) commandMarker() {}
func (CmdSampleDevices) String() string { return "CmdSampleDevices()" }

// CmdTransmitFrame requests one fire-and-forget datagram to the simulator.
type CmdTransmitFrame struct {
	Frame Frame
}

func (CmdTransmitFrame) commandMarker() {}
func (c CmdTransmitFrame) String() string {
	return fmt.Sprintf("CmdTransmitFrame(values=%d)", len(c.Frame.Values))
}

// CmdSaveMappings requests a rewrite of the mappings file.
type CmdSaveMappings struct {
	Records []MappingRecord
}

func (CmdSaveMappings) commandMarker() {}
func (c CmdSaveMappings) String() string {
	return fmt.Sprintf("CmdSaveMappings(records=%d)", len(c.Records))
}

// CmdLoadMappings requests a read of the mappings file.
type CmdLoadMappings struct{}

func (CmdLoadMappings) commandMarker() {}
func (CmdLoadMappings) String() string { return "CmdLoadMappings()" }

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
// The channel send happens in the effects layer to keep Reduce pure.
type CmdPublishStateSnapshot struct {
	Snapshot StateSnapshot
	Reply    chan StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// ==============================
// Broadcasts (WS fan-out)
// ==============================

// StateBroadcast is a reducer-emitted state-change notification for clients.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastValuesChanged carries the function values that changed this tick.
type BroadcastValuesChanged struct {
	Values []FunctionValue
	At     time.Time
}

func (BroadcastValuesChanged) broadcastMarker() {}

// BroadcastCaptureChanged reports a capture phase transition.
// Result is empty while listening begins, otherwise one of the terminal
// capture results.
type BroadcastCaptureChanged struct {
	Function  FunctionID
	Listening bool
	Result    CaptureResult
	Selector  string
	At        time.Time
}

func (BroadcastCaptureChanged) broadcastMarker() {}

// BroadcastMappingsChanged reports that the mapping set changed.
type BroadcastMappingsChanged struct {
	Count   int
	Skipped int
	At      time.Time
}

func (BroadcastMappingsChanged) broadcastMarker() {}

// BroadcastTransmitStatus reports a transmit health transition.
type BroadcastTransmitStatus struct {
	OK    bool
	Error string
	At    time.Time
}

func (BroadcastTransmitStatus) broadcastMarker() {}

// BroadcastDevicesChanged reports a device enable/disable or arrival.
type BroadcastDevicesChanged struct {
	Devices []DeviceStatus
	At      time.Time
}

func (BroadcastDevicesChanged) broadcastMarker() {}

// ==============================
// Reducer input/output
// ==============================

// ReducerConfig carries the tunables the reducer needs.
type ReducerConfig struct {
	Transform TransformConfig
	Capture   CaptureConfig
}

// ReduceResult is the output of Reduce(): next state plus Commands to execute
// and Broadcasts to fan out.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
//
// The daemon loop must:
// - execute Commands
// - translate effect outcomes into Events
// - feed those Events back into Reduce()
func Reduce(s *DaemonState, e Event, cfg ReducerConfig) ReduceResult {
	if s == nil {
		s = NewDaemonState()
	}

	var cmds []Command
	var bcasts []StateBroadcast

	switch ev := e.(type) {
	case TimedEvent:
		return reduceTimed(s, ev.Event, ev.At, cfg)

	case Tick:
		// Tick only requests a poll; the transform pipeline runs when the
		// samples come back as SamplesObserved.
		cmds = append(cmds, CmdSampleDevices{})

	case SamplesObserved:
		s.Samples = ev.Samples
		s.RecordDevices(ev.Samples)
		enabled := s.EnabledSet()

		// Capture runs on the same samples the transform sees, detection
		// before deadline, so an activation landing on the final tick wins.
		if s.Capture.Phase == CaptureListening {
			fn := s.Capture.Function
			next, sel, result, done := captureStep(s.Capture, ev.Samples, enabled, ev.At, cfg.Capture)
			s.Capture = next
			if done {
				switch result {
				case CaptureResolved:
					spec, _ := LookupFunction(fn)
					m := Mapping{
						Function: fn,
						Selector: sel,
						Type:     spec.Type,
						Config:   defaultConfigFor(spec, cfg.Transform.Deadzone),
					}
					s.ApplyMapping(m)
					cmds = append(cmds, CmdSaveMappings{Records: s.MappingRecords()})
					bcasts = append(bcasts,
						BroadcastCaptureChanged{Function: fn, Result: result, Selector: sel.String(), At: ev.At},
						BroadcastMappingsChanged{Count: s.Registry.Len(), At: ev.At},
					)
				default:
					bcasts = append(bcasts,
						BroadcastCaptureChanged{Function: fn, Result: result, At: ev.At})
				}
			}
		}

		// Transform every bound function and transmit the full frame.
		prev := BuildFrame(s.Outputs)
		transformAll(s.Registry, ev.Samples, enabled, cfg.Transform, s.Funcs, s.Outputs)
		frame := BuildFrame(s.Outputs)
		cmds = append(cmds, CmdTransmitFrame{Frame: frame})

		if changed := changedValues(prev, frame); len(changed) > 0 {
			bcasts = append(bcasts, BroadcastValuesChanged{Values: changed, At: ev.At})
		}

	case MappingRecordsLoaded:
		applied, skipped := applyRecords(s, ev.Records)
		bcasts = append(bcasts, BroadcastMappingsChanged{
			Count:   applied,
			Skipped: skipped + len(ev.Warnings),
			At:      ev.At,
		})

	case FrameTransmitted:
		ok := ev.Err == nil
		if !s.TransmitKnown || s.TransmitOK != ok {
			bc := BroadcastTransmitStatus{OK: ok, At: ev.At}
			if ev.Err != nil {
				bc.Error = ev.Err.Error()
			}
			bcasts = append(bcasts, bc)
		}
		s.TransmitKnown = true
		s.TransmitOK = ok
		s.TransmitErr = ""
		s.TransmitAt = ev.At
		if ev.Err != nil {
			s.TransmitErr = ev.Err.Error()
		}

	case RequestStateSnapshot:
		cmds = append(cmds, CmdPublishStateSnapshot{
			Snapshot: s.Snapshot(),
			Reply:    ev.Reply,
		})

	case EffectFailed:
		// Non-fatal by contract. The effects layer already logged it.
		_ = ev

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{State: s, Commands: cmds, Broadcasts: bcasts}
}

// reduceTimed handles operator actions that need a timestamp.
func reduceTimed(s *DaemonState, e Event, at time.Time, cfg ReducerConfig) ReduceResult {
	var cmds []Command
	var bcasts []StateBroadcast

	switch ev := e.(type) {
	case StartCapture:
		if _, ok := LookupFunction(ev.Function); !ok {
			// Unknown function: nothing to bind, stay idle.
			break
		}
		s.Capture = startCapture(s.Capture, ev.Function, s.Samples, at, cfg.Capture)
		bcasts = append(bcasts, BroadcastCaptureChanged{
			Function:  ev.Function,
			Listening: true,
			At:        at,
		})

	case CancelCapture:
		if s.Capture.Phase == CaptureListening {
			fn := s.Capture.Function
			s.Capture = cancelCapture(s.Capture)
			bcasts = append(bcasts, BroadcastCaptureChanged{
				Function: fn,
				Result:   CaptureCancelled,
				At:       at,
			})
		}

	case SetMapping:
		m, err := MappingFromRecord(ev.Record)
		if err == nil {
			err = m.Validate(s.Devices)
		}
		if err != nil {
			// The record is rejected, not installed. Clients learn via the
			// skipped count that the mapping set is unchanged.
			bcasts = append(bcasts, BroadcastMappingsChanged{
				Count:   s.Registry.Len(),
				Skipped: 1,
				At:      at,
			})
			break
		}
		s.ApplyMapping(m)
		cmds = append(cmds, CmdSaveMappings{Records: s.MappingRecords()})
		bcasts = append(bcasts, BroadcastMappingsChanged{Count: s.Registry.Len(), At: at})

	case ClearMapping:
		if s.Registry.Clear(ev.Function) {
			s.ResetFunctionState(ev.Function)
			cmds = append(cmds, CmdSaveMappings{Records: s.MappingRecords()})
			bcasts = append(bcasts, BroadcastMappingsChanged{Count: s.Registry.Len(), At: at})
		}

	case ReplaceMappings:
		applied, skipped := applyRecords(s, ev.Records)
		cmds = append(cmds, CmdSaveMappings{Records: s.MappingRecords()})
		bcasts = append(bcasts, BroadcastMappingsChanged{Count: applied, Skipped: skipped, At: at})

	case ReloadMappings:
		cmds = append(cmds, CmdLoadMappings{})

	case SetDeviceEnabled:
		s.SetDeviceEnabled(ev.Device, ev.Enabled)
		bcasts = append(bcasts, BroadcastDevicesChanged{Devices: s.Snapshot().Devices, At: at})

	case RequestStateSnapshot:
		// Snapshot requests arrive on the events channel like any other
		// external event, so they reach here wrapped with a timestamp.
		cmds = append(cmds, CmdPublishStateSnapshot{
			Snapshot: s.Snapshot(),
			Reply:    ev.Reply,
		})

	case SetReverse:
		m, ok := s.Registry.Get(ev.Function)
		if !ok {
			break
		}
		lc, ok := m.Config.(LeverConfig)
		if !ok || lc.Reverse == ev.Reverse {
			break
		}
		lc.Reverse = ev.Reverse
		m.Config = lc
		s.Registry.Set(m)
		cmds = append(cmds, CmdSaveMappings{Records: s.MappingRecords()})
		bcasts = append(bcasts, BroadcastMappingsChanged{Count: s.Registry.Len(), At: at})

	default:
		// Observations and ticks never arrive wrapped; ignore.
	}

	return ReduceResult{State: s, Commands: cmds, Broadcasts: bcasts}
}

// applyRecords replaces the registry contents from persisted records,
// skipping rows that fail conversion or device validation.
//
// Function state survives the reload for every function whose mapping is
// unchanged; only added, changed, or removed bindings reset. The daemon's own
// save fires the file watcher, so reapplying an identical record set must not
// disturb live outputs, toggle parity, or frozen shared-axis values.
func applyRecords(s *DaemonState, records []MappingRecord) (applied, skipped int) {
	var mappings []Mapping
	for _, rec := range records {
		m, err := MappingFromRecord(rec)
		if err != nil {
			skipped++
			continue
		}
		if err := m.Validate(s.Devices); err != nil {
			skipped++
			continue
		}
		mappings = append(mappings, m)
	}

	prev := make(map[FunctionID]Mapping, s.Registry.Len())
	for _, m := range s.Registry.All() {
		prev[m.Function] = m
	}
	s.Registry.ReplaceAll(mappings)

	next := make(map[FunctionID]Mapping, len(mappings))
	for _, m := range mappings {
		next[m.Function] = m
	}
	unchanged := make(map[FunctionID]bool, len(mappings))
	for fn, m := range next {
		if old, ok := prev[fn]; ok && reflect.DeepEqual(old, m) {
			unchanged[fn] = true
		}
	}
	// A paired function is driven by its primary's mapping; its state follows
	// the primary's fate unless it carries its own binding.
	for _, m := range mappings {
		if !unchanged[m.Function] {
			continue
		}
		if lc, ok := m.Config.(LeverConfig); ok && lc.PairedWith != 0 {
			if _, ownBinding := next[lc.PairedWith]; !ownBinding {
				unchanged[lc.PairedWith] = true
			}
		}
	}

	for fn := range s.Funcs {
		if !unchanged[fn] {
			delete(s.Funcs, fn)
		}
	}
	for fn := range s.Outputs {
		if !unchanged[fn] {
			delete(s.Outputs, fn)
		}
	}
	return len(mappings), skipped
}

// changedValues returns the values present in next whose bytes differ from prev.
func changedValues(prev, next Frame) []FunctionValue {
	var changed []FunctionValue
	for i, fv := range next.Values {
		if i >= len(prev.Values) || prev.Values[i].Value != fv.Value {
			changed = append(changed, fv)
		}
	}
	return changed
}
