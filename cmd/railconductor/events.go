package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events - Reducer Inputs
// ============================================================================
// Events represent everything the daemon loop reduces: operator actions
// (IPC, ctl tool, WS clients), time ticks, device sample observations, and
// effect outcomes. The daemon loop is the single consumer; every mapping
// mutation travels through this channel, so the tick pipeline never observes
// a half-applied registry.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop at the configured cadence.
// Dt is wall-clock delta in seconds between ticks.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// TimedEvent wraps a payload event with the time the daemon loop received it.
// Payload events stay clean; the loop owns timestamps.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// ============================================================================
// Operator actions (externally deliverable via IPC / WS)
// ============================================================================

// StartCapture requests a capture window for the given function: the next
// fresh activation on any enabled device becomes its binding.
type StartCapture struct {
	Function FunctionID `json:"function"`
}

func (StartCapture) eventMarker() {}

// CancelCapture aborts an in-progress capture. The prior mapping is kept.
type CancelCapture struct{}

func (CancelCapture) eventMarker() {}

// SetMapping installs or overwrites a mapping directly from a record.
type SetMapping struct {
	Record MappingRecord `json:"record"`
}

func (SetMapping) eventMarker() {}

// ClearMapping removes the mapping for a function and resets its state.
type ClearMapping struct {
	Function FunctionID `json:"function"`
}

func (ClearMapping) eventMarker() {}

// ReplaceMappings swaps the whole mapping set in one step.
type ReplaceMappings struct {
	Records []MappingRecord `json:"records"`
}

func (ReplaceMappings) eventMarker() {}

// ReloadMappings re-reads the mappings file. Emitted by the file watcher and
// available to clients.
type ReloadMappings struct{}

func (ReloadMappings) eventMarker() {}

// SetDeviceEnabled toggles whether a device participates in transforms and
// capture. A disabled device's mapped outputs hold their last value.
type SetDeviceEnabled struct {
	Device  int  `json:"device"`
	Enabled bool `json:"enabled"`
}

func (SetDeviceEnabled) eventMarker() {}

// SetReverse flips the axis-reversal flag on a lever mapping.
type SetReverse struct {
	Function FunctionID `json:"function"`
	Reverse  bool       `json:"reverse"`
}

func (SetReverse) eventMarker() {}

// RequestStateSnapshot asks the reducer for a coherent state snapshot,
// delivered through the effects layer on Reply. Internal only; it has no
// envelope form.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ============================================================================
// Observations (emitted by the effects layer, internal only)
// ============================================================================

// SamplesObserved carries one poll of the device source.
type SamplesObserved struct {
	Samples SampleSet
	At      time.Time
}

func (SamplesObserved) eventMarker() {}

// MappingRecordsLoaded is emitted after the mappings file was read.
// Warnings list rows that were skipped; the remaining records still apply.
type MappingRecordsLoaded struct {
	Records  []MappingRecord
	Warnings []string
	At       time.Time
}

func (MappingRecordsLoaded) eventMarker() {}

// FrameTransmitted reports the outcome of one datagram send.
// Err is nil on success.
type FrameTransmitted struct {
	Err error
	At  time.Time
}

func (FrameTransmitted) eventMarker() {}

// EffectFailed is emitted when executing a Command fails for reasons other
// than transmit (save/load errors, missing collaborators).
type EffectFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (EffectFailed) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// ActionEnvelope wraps operator actions for JSON serialization. Since Go has
// no union types, a type discriminator selects the concrete payload.
// ============================================================================

// ActionEnvelope wraps an action with a type discriminator for JSON marshaling
type ActionEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalAction deserializes a JSON action envelope into a concrete Event
func UnmarshalAction(data []byte) (Event, error) {
	var env ActionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "start_capture":
		var a StartCapture
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal StartCapture: %w", err)
		}
		return a, nil

	case "cancel_capture":
		return CancelCapture{}, nil

	case "set_mapping":
		var a SetMapping
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetMapping: %w", err)
		}
		return a, nil

	case "clear_mapping":
		var a ClearMapping
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal ClearMapping: %w", err)
		}
		return a, nil

	case "replace_mappings":
		var a ReplaceMappings
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal ReplaceMappings: %w", err)
		}
		return a, nil

	case "reload_mappings":
		return ReloadMappings{}, nil

	case "set_device_enabled":
		var a SetDeviceEnabled
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetDeviceEnabled: %w", err)
		}
		return a, nil

	case "set_reverse":
		var a SetReverse
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetReverse: %w", err)
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unknown action type: %q", env.Type)
	}
}

// MarshalAction serializes an operator action into a JSON envelope with type
// discriminator. Internal events (observations, snapshot requests) have no
// envelope form and return an error.
func MarshalAction(e Event) ([]byte, error) {
	var env ActionEnvelope

	switch a := e.(type) {
	case StartCapture:
		env.Type = "start_capture"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal StartCapture: %w", err)
		}
		env.Data = data

	case CancelCapture:
		env.Type = "cancel_capture"

	case SetMapping:
		env.Type = "set_mapping"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetMapping: %w", err)
		}
		env.Data = data

	case ClearMapping:
		env.Type = "clear_mapping"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal ClearMapping: %w", err)
		}
		env.Data = data

	case ReplaceMappings:
		env.Type = "replace_mappings"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal ReplaceMappings: %w", err)
		}
		env.Data = data

	case ReloadMappings:
		env.Type = "reload_mappings"

	case SetDeviceEnabled:
		env.Type = "set_device_enabled"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetDeviceEnabled: %w", err)
		}
		env.Data = data

	case SetReverse:
		env.Type = "set_reverse"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetReverse: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported action type: %T", e)
	}

	return json.Marshal(env)
}
