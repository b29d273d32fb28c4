package main

import (
	"errors"
	"testing"
	"time"
)

func testReducerConfig() ReducerConfig {
	return ReducerConfig{
		Transform: TransformConfig{Activation: 0.7, Deadzone: 0.05},
		Capture:   CaptureConfig{Window: 5 * time.Second, Activation: 0.7},
	}
}

func buttonSamples(pressed ...bool) SampleSet {
	snap := DeviceSnapshot{Connected: true, Buttons: pressed, Axes: make([]float64, 2)}
	return SampleSet{Devices: map[int]DeviceSample{
		0: {Info: DeviceInfo{ID: 0, Buttons: len(pressed), Axes: 2}, Snap: snap},
	}}
}

func findCommand[T Command](cmds []Command) (T, bool) {
	for _, c := range cmds {
		if v, ok := c.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func findBroadcast[T StateBroadcast](bcasts []StateBroadcast) (T, bool) {
	for _, b := range bcasts {
		if v, ok := b.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// TestReduce_Tick_RequestsDevicePoll verifies a tick only schedules sampling
func TestReduce_Tick_RequestsDevicePoll(t *testing.T) {
	s := NewDaemonState()
	rr := Reduce(s, Tick{Now: time.Unix(1000, 0)}, testReducerConfig())

	if len(rr.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(rr.Commands))
	}
	if _, ok := rr.Commands[0].(CmdSampleDevices); !ok {
		t.Errorf("expected CmdSampleDevices, got %T", rr.Commands[0])
	}
	if len(rr.Broadcasts) != 0 {
		t.Errorf("expected no broadcasts on a bare tick, got %d", len(rr.Broadcasts))
	}
}

// TestReduce_SamplesObserved_TransmitsFullFrame verifies every tick emits a
// complete frame even with nothing mapped
func TestReduce_SamplesObserved_TransmitsFullFrame(t *testing.T) {
	s := NewDaemonState()
	rr := Reduce(s, SamplesObserved{Samples: buttonSamples(false, false), At: time.Unix(1000, 0)}, testReducerConfig())

	tx, ok := findCommand[CmdTransmitFrame](rr.Commands)
	if !ok {
		t.Fatalf("expected a transmit command")
	}
	if len(tx.Frame.Values) != len(Catalogue()) {
		t.Errorf("expected a full frame of %d values, got %d", len(Catalogue()), len(tx.Frame.Values))
	}
	for _, fv := range tx.Frame.Values {
		if fv.Value != 0 {
			t.Errorf("unmapped function %d should transmit 0, got %d", fv.ID, fv.Value)
		}
	}
}

// TestReduce_CaptureResolvesAndPersists walks a full capture: start, press a
// button, verify the binding, the save command, and the broadcasts
func TestReduce_CaptureResolvesAndPersists(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()
	t0 := time.Unix(1000, 0)

	// Seed the baseline samples and device set.
	rr := Reduce(s, SamplesObserved{Samples: buttonSamples(false, false), At: t0}, cfg)
	s = rr.State

	rr = Reduce(s, TimedEvent{Event: StartCapture{Function: FuncBell}, At: t0}, cfg)
	s = rr.State
	if s.Capture.Phase != CaptureListening {
		t.Fatalf("expected listening capture, got %q", s.Capture.Phase)
	}
	bc, ok := findBroadcast[BroadcastCaptureChanged](rr.Broadcasts)
	if !ok || !bc.Listening {
		t.Fatalf("expected a listening broadcast, got %+v", rr.Broadcasts)
	}

	// A fresh press arrives two ticks later.
	rr = Reduce(s, SamplesObserved{Samples: buttonSamples(false, true), At: t0.Add(2 * time.Second)}, cfg)
	s = rr.State

	if s.Capture.Phase != CaptureIdle {
		t.Errorf("expected capture to return to idle, got %q", s.Capture.Phase)
	}
	m, bound := s.Registry.Get(FuncBell)
	if !bound {
		t.Fatalf("expected the bell to be bound")
	}
	if m.Selector.Kind != KindButton || m.Selector.Index != 1 {
		t.Errorf("expected button 1 binding, got %v", m.Selector)
	}
	if m.Type != TypeMomentary {
		t.Errorf("expected the catalogue default momentary type, got %q", m.Type)
	}

	if _, ok := findCommand[CmdSaveMappings](rr.Commands); !ok {
		t.Errorf("expected the resolved capture to persist the mapping set")
	}
	bc, ok = findBroadcast[BroadcastCaptureChanged](rr.Broadcasts)
	if !ok || bc.Result != CaptureResolved {
		t.Errorf("expected a resolved capture broadcast, got %+v", rr.Broadcasts)
	}
	if _, ok := findBroadcast[BroadcastMappingsChanged](rr.Broadcasts); !ok {
		t.Errorf("expected a mappings changed broadcast")
	}

	// The press that resolved the capture also drives the new binding on the
	// same tick, so the transmitted bell value is already 1.
	tx, _ := findCommand[CmdTransmitFrame](rr.Commands)
	if v, _ := tx.Frame.Value(FuncBell); v != 1 {
		t.Errorf("expected the capturing press to drive bell=1, got %d", v)
	}
}

// TestReduce_CaptureTimeoutLeavesPriorMapping verifies a timed-out capture
// neither unbinds nor rebinds the function
func TestReduce_CaptureTimeoutLeavesPriorMapping(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()
	t0 := time.Unix(1000, 0)

	prior := Mapping{
		Function: FuncBell,
		Selector: Selector{Device: 0, Kind: KindButton, Index: 0},
		Type:     TypeMomentary,
		Config:   MomentaryConfig{},
	}
	s.ApplyMapping(prior)

	rr := Reduce(s, SamplesObserved{Samples: buttonSamples(false, false), At: t0}, cfg)
	s = rr.State
	rr = Reduce(s, TimedEvent{Event: StartCapture{Function: FuncBell}, At: t0}, cfg)
	s = rr.State

	// Nothing happens until past the deadline.
	rr = Reduce(s, SamplesObserved{Samples: buttonSamples(false, false), At: t0.Add(6 * time.Second)}, cfg)
	s = rr.State

	if s.Capture.Phase != CaptureIdle {
		t.Errorf("expected idle capture after timeout, got %q", s.Capture.Phase)
	}
	m, bound := s.Registry.Get(FuncBell)
	if !bound || m.Selector != prior.Selector {
		t.Errorf("expected the prior mapping to survive the timeout, got %+v bound=%v", m, bound)
	}
	bc, ok := findBroadcast[BroadcastCaptureChanged](rr.Broadcasts)
	if !ok || bc.Result != CaptureTimedOut {
		t.Errorf("expected a timed out broadcast, got %+v", rr.Broadcasts)
	}
	if _, ok := findCommand[CmdSaveMappings](rr.Commands); ok {
		t.Errorf("a timed-out capture must not rewrite the mappings file")
	}
}

// TestReduce_CancelCapture verifies cancellation reports its own result
func TestReduce_CancelCapture(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()
	t0 := time.Unix(1000, 0)

	rr := Reduce(s, TimedEvent{Event: StartCapture{Function: FuncHorn}, At: t0}, cfg)
	s = rr.State
	rr = Reduce(s, TimedEvent{Event: CancelCapture{}, At: t0.Add(time.Second)}, cfg)
	s = rr.State

	if s.Capture.Phase != CaptureIdle {
		t.Errorf("expected idle capture after cancel, got %q", s.Capture.Phase)
	}
	bc, ok := findBroadcast[BroadcastCaptureChanged](rr.Broadcasts)
	if !ok || bc.Result != CaptureCancelled || bc.Function != FuncHorn {
		t.Errorf("expected a cancelled broadcast for the horn, got %+v", rr.Broadcasts)
	}
}

// TestReduce_TogglesFlipAcrossTicks verifies toggle parity through the full
// reduce pipeline: output equals rising edges mod 2
func TestReduce_TogglesFlipAcrossTicks(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()
	t0 := time.Unix(1000, 0)

	s.ApplyMapping(Mapping{
		Function: FuncCabLight,
		Selector: Selector{Device: 0, Kind: KindButton, Index: 0},
		Type:     TypeToggle,
		Config:   ToggleConfig{},
	})

	inputs := []bool{true, true, false, true, false}
	want := []uint8{1, 1, 1, 0, 0}

	for i, pressed := range inputs {
		rr := Reduce(s, SamplesObserved{Samples: buttonSamples(pressed), At: t0.Add(time.Duration(i) * time.Second)}, cfg)
		s = rr.State
		tx, ok := findCommand[CmdTransmitFrame](rr.Commands)
		if !ok {
			t.Fatalf("tick %d: expected a transmit command", i)
		}
		if v, _ := tx.Frame.Value(FuncCabLight); v != want[i] {
			t.Errorf("tick %d: expected cab light %d, got %d", i, want[i], v)
		}
	}
}

// TestReduce_ValuesChangedBroadcastOnlyOnChange verifies quiet ticks stay
// silent on the broadcast side while still transmitting
func TestReduce_ValuesChangedBroadcastOnlyOnChange(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()
	t0 := time.Unix(1000, 0)

	s.ApplyMapping(Mapping{
		Function: FuncSander,
		Selector: Selector{Device: 0, Kind: KindButton, Index: 0},
		Type:     TypeMomentary,
		Config:   MomentaryConfig{},
	})

	rr := Reduce(s, SamplesObserved{Samples: buttonSamples(true), At: t0}, cfg)
	s = rr.State
	bc, ok := findBroadcast[BroadcastValuesChanged](rr.Broadcasts)
	if !ok {
		t.Fatalf("expected a values changed broadcast on the press")
	}
	if len(bc.Values) != 1 || bc.Values[0].ID != FuncSander || bc.Values[0].Value != 1 {
		t.Errorf("expected only the sander delta, got %+v", bc.Values)
	}

	// Held input: same outputs, no broadcast, still a transmit.
	rr = Reduce(s, SamplesObserved{Samples: buttonSamples(true), At: t0.Add(time.Second)}, cfg)
	s = rr.State
	if _, ok := findBroadcast[BroadcastValuesChanged](rr.Broadcasts); ok {
		t.Errorf("expected no broadcast while outputs are unchanged")
	}
	if _, ok := findCommand[CmdTransmitFrame](rr.Commands); !ok {
		t.Errorf("expected a transmit even on a quiet tick")
	}
}

// TestReduce_SetReverseUpdatesLever verifies reversal flips persist and only
// apply to lever mappings
func TestReduce_SetReverseUpdatesLever(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()
	t0 := time.Unix(1000, 0)

	s.ApplyMapping(Mapping{
		Function: FuncThrottleLever,
		Selector: Selector{Device: 0, Kind: KindAxis, Index: 1},
		Type:     TypeLever,
		Config:   LeverConfig{Deadzone: 0.05},
	})

	rr := Reduce(s, TimedEvent{Event: SetReverse{Function: FuncThrottleLever, Reverse: true}, At: t0}, cfg)
	s = rr.State

	m, _ := s.Registry.Get(FuncThrottleLever)
	if lc := m.Config.(LeverConfig); !lc.Reverse {
		t.Errorf("expected the lever to be reversed")
	}
	if _, ok := findCommand[CmdSaveMappings](rr.Commands); !ok {
		t.Errorf("expected the reversal to persist")
	}

	// Setting the same value again is a no-op.
	rr = Reduce(s, TimedEvent{Event: SetReverse{Function: FuncThrottleLever, Reverse: true}, At: t0.Add(time.Second)}, cfg)
	if len(rr.Commands) != 0 || len(rr.Broadcasts) != 0 {
		t.Errorf("expected an unchanged reversal to do nothing")
	}

	// Non-lever functions reject reversal.
	s.ApplyMapping(Mapping{
		Function: FuncBell,
		Selector: Selector{Device: 0, Kind: KindButton, Index: 0},
		Type:     TypeMomentary,
		Config:   MomentaryConfig{},
	})
	rr = Reduce(s, TimedEvent{Event: SetReverse{Function: FuncBell, Reverse: true}, At: t0.Add(2 * time.Second)}, cfg)
	if len(rr.Commands) != 0 {
		t.Errorf("expected reversal on a momentary mapping to do nothing")
	}
}

// TestReduce_ClearMappingResetsState verifies clearing removes the binding
// and its output
func TestReduce_ClearMappingResetsState(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()
	t0 := time.Unix(1000, 0)

	s.ApplyMapping(Mapping{
		Function: FuncSander,
		Selector: Selector{Device: 0, Kind: KindButton, Index: 0},
		Type:     TypeMomentary,
		Config:   MomentaryConfig{},
	})
	rr := Reduce(s, SamplesObserved{Samples: buttonSamples(true), At: t0}, cfg)
	s = rr.State
	if s.Outputs[FuncSander] != 1 {
		t.Fatalf("expected sander=1 before clearing")
	}

	rr = Reduce(s, TimedEvent{Event: ClearMapping{Function: FuncSander}, At: t0.Add(time.Second)}, cfg)
	s = rr.State

	if _, bound := s.Registry.Get(FuncSander); bound {
		t.Errorf("expected the sander to be unbound")
	}
	if _, ok := s.Outputs[FuncSander]; ok {
		t.Errorf("expected the sander output to reset")
	}
	if _, ok := findCommand[CmdSaveMappings](rr.Commands); !ok {
		t.Errorf("expected the clear to persist")
	}

	// Clearing an unbound function is a no-op.
	rr = Reduce(s, TimedEvent{Event: ClearMapping{Function: FuncSander}, At: t0.Add(2 * time.Second)}, cfg)
	if len(rr.Commands) != 0 {
		t.Errorf("expected clearing an unbound function to do nothing")
	}
}

// TestReduce_DisabledDeviceHoldsOutputs verifies disabling a device freezes
// its mapped outputs at their last value
func TestReduce_DisabledDeviceHoldsOutputs(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()
	t0 := time.Unix(1000, 0)

	s.ApplyMapping(Mapping{
		Function: FuncHorn,
		Selector: Selector{Device: 0, Kind: KindButton, Index: 0},
		Type:     TypeMomentary,
		Config:   MomentaryConfig{},
	})

	rr := Reduce(s, SamplesObserved{Samples: buttonSamples(true), At: t0}, cfg)
	s = rr.State
	if s.Outputs[FuncHorn] != 1 {
		t.Fatalf("expected horn=1 while pressed")
	}

	rr = Reduce(s, TimedEvent{Event: SetDeviceEnabled{Device: 0, Enabled: false}, At: t0.Add(time.Second)}, cfg)
	s = rr.State
	if _, ok := findBroadcast[BroadcastDevicesChanged](rr.Broadcasts); !ok {
		t.Errorf("expected a devices changed broadcast")
	}

	// Button released, but the device is disabled: output holds.
	rr = Reduce(s, SamplesObserved{Samples: buttonSamples(false), At: t0.Add(2 * time.Second)}, cfg)
	s = rr.State
	if s.Outputs[FuncHorn] != 1 {
		t.Errorf("expected horn to hold 1 while its device is disabled, got %d", s.Outputs[FuncHorn])
	}

	// Re-enabling resumes tracking.
	rr = Reduce(s, TimedEvent{Event: SetDeviceEnabled{Device: 0, Enabled: true}, At: t0.Add(3 * time.Second)}, cfg)
	s = rr.State
	rr = Reduce(s, SamplesObserved{Samples: buttonSamples(false), At: t0.Add(4 * time.Second)}, cfg)
	s = rr.State
	if s.Outputs[FuncHorn] != 0 {
		t.Errorf("expected horn to drop to 0 after re-enabling, got %d", s.Outputs[FuncHorn])
	}
}

// TestReduce_MappingRecordsLoaded verifies loaded records replace the
// registry and invalid entries are counted
func TestReduce_MappingRecordsLoaded(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()
	t0 := time.Unix(1000, 0)

	s.ApplyMapping(Mapping{
		Function: FuncBell,
		Selector: Selector{Device: 0, Kind: KindButton, Index: 0},
		Type:     TypeMomentary,
		Config:   MomentaryConfig{},
	})

	records := []MappingRecord{
		{FunctionID: FuncHorn, InputType: TypeMomentary, DeviceID: 0, InputKind: KindButton, InputIndex: 2},
		{FunctionID: 999, InputType: TypeMomentary, DeviceID: 0, InputKind: KindButton, InputIndex: 3},
	}
	rr := Reduce(s, MappingRecordsLoaded{Records: records, Warnings: []string{"row 4: bad"}, At: t0}, cfg)
	s = rr.State

	if _, bound := s.Registry.Get(FuncBell); bound {
		t.Errorf("expected the load to replace the whole registry")
	}
	if _, bound := s.Registry.Get(FuncHorn); !bound {
		t.Errorf("expected the loaded horn mapping to apply")
	}
	bc, ok := findBroadcast[BroadcastMappingsChanged](rr.Broadcasts)
	if !ok {
		t.Fatalf("expected a mappings changed broadcast")
	}
	if bc.Count != 1 || bc.Skipped != 2 {
		t.Errorf("expected count=1 skipped=2 (1 invalid record + 1 file warning), got %+v", bc)
	}
}

// TestReduce_SetMappingRejectsInvalidRecord verifies a bad record is not
// installed and the rejection is observable to clients
func TestReduce_SetMappingRejectsInvalidRecord(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()
	t0 := time.Unix(1000, 0)

	bad := MappingRecord{
		FunctionID: 999,
		InputType:  TypeMomentary,
		DeviceID:   0,
		InputKind:  KindButton,
		InputIndex: 0,
	}
	rr := Reduce(s, TimedEvent{Event: SetMapping{Record: bad}, At: t0}, cfg)
	s = rr.State

	if s.Registry.Len() != 0 {
		t.Errorf("expected the invalid record not to install, registry has %d", s.Registry.Len())
	}
	if _, ok := findCommand[CmdSaveMappings](rr.Commands); ok {
		t.Errorf("an invalid record must not rewrite the mappings file")
	}
	bc, ok := findBroadcast[BroadcastMappingsChanged](rr.Broadcasts)
	if !ok {
		t.Fatalf("expected a broadcast reporting the rejection")
	}
	if bc.Count != 0 || bc.Skipped != 1 {
		t.Errorf("expected count=0 skipped=1, got %+v", bc)
	}

	// A valid record still installs and persists.
	good := MappingRecord{
		FunctionID: FuncBell,
		InputType:  TypeMomentary,
		DeviceID:   0,
		InputKind:  KindButton,
		InputIndex: 0,
	}
	rr = Reduce(s, TimedEvent{Event: SetMapping{Record: good}, At: t0.Add(time.Second)}, cfg)
	s = rr.State
	if _, bound := s.Registry.Get(FuncBell); !bound {
		t.Errorf("expected the valid record to install")
	}
	if _, ok := findCommand[CmdSaveMappings](rr.Commands); !ok {
		t.Errorf("expected the valid record to persist")
	}
}

// TestReduce_IdenticalRecordReloadKeepsState verifies the save-watch-reload
// cycle does not disturb live outputs: a reload with an unchanged record set
// keeps toggle state, and only a changed binding resets it
func TestReduce_IdenticalRecordReloadKeepsState(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()
	t0 := time.Unix(1000, 0)

	s.ApplyMapping(Mapping{
		Function: FuncCabLight,
		Selector: Selector{Device: 0, Kind: KindButton, Index: 0},
		Type:     TypeToggle,
		Config:   ToggleConfig{},
	})

	// Toggle the cab light on, then release.
	rr := Reduce(s, SamplesObserved{Samples: buttonSamples(true, false), At: t0}, cfg)
	s = rr.State
	rr = Reduce(s, SamplesObserved{Samples: buttonSamples(false, false), At: t0.Add(time.Second)}, cfg)
	s = rr.State
	if s.Outputs[FuncCabLight] != 1 {
		t.Fatalf("expected cab light toggled on, got %d", s.Outputs[FuncCabLight])
	}

	// The daemon's own save re-enters through the watcher as a reload of the
	// exact records it just wrote.
	rr = Reduce(s, MappingRecordsLoaded{Records: s.MappingRecords(), At: t0.Add(2 * time.Second)}, cfg)
	s = rr.State

	rr = Reduce(s, SamplesObserved{Samples: buttonSamples(false, false), At: t0.Add(3 * time.Second)}, cfg)
	s = rr.State
	tx, ok := findCommand[CmdTransmitFrame](rr.Commands)
	if !ok {
		t.Fatalf("expected a transmit command")
	}
	if v, _ := tx.Frame.Value(FuncCabLight); v != 1 {
		t.Errorf("identical-record reload must keep the cab light on, transmitted %d", v)
	}

	// A genuinely changed binding does reset to the type default.
	records := s.MappingRecords()
	for i := range records {
		if records[i].FunctionID == FuncCabLight {
			records[i].InputIndex = 1
		}
	}
	rr = Reduce(s, MappingRecordsLoaded{Records: records, At: t0.Add(4 * time.Second)}, cfg)
	s = rr.State
	rr = Reduce(s, SamplesObserved{Samples: buttonSamples(false, false), At: t0.Add(5 * time.Second)}, cfg)
	s = rr.State
	if v := s.Outputs[FuncCabLight]; v != 0 {
		t.Errorf("rebound cab light should reset to 0, got %d", v)
	}
}

// TestReduce_TransmitStatusTransitions verifies health broadcasts fire on
// transitions only
func TestReduce_TransmitStatusTransitions(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()
	t0 := time.Unix(1000, 0)

	rr := Reduce(s, FrameTransmitted{At: t0}, cfg)
	s = rr.State
	bc, ok := findBroadcast[BroadcastTransmitStatus](rr.Broadcasts)
	if !ok || !bc.OK {
		t.Fatalf("expected an initial ok broadcast, got %+v", rr.Broadcasts)
	}

	// Second success: no transition, no broadcast.
	rr = Reduce(s, FrameTransmitted{At: t0.Add(time.Second)}, cfg)
	s = rr.State
	if len(rr.Broadcasts) != 0 {
		t.Errorf("expected no broadcast on a repeated success")
	}

	// Failure: transition with the error attached.
	sendErr := errors.New("network is unreachable")
	rr = Reduce(s, FrameTransmitted{Err: sendErr, At: t0.Add(2 * time.Second)}, cfg)
	s = rr.State
	bc, ok = findBroadcast[BroadcastTransmitStatus](rr.Broadcasts)
	if !ok || bc.OK || bc.Error != sendErr.Error() {
		t.Errorf("expected a failure broadcast carrying the error, got %+v", rr.Broadcasts)
	}
	if s.TransmitOK || s.TransmitErr != sendErr.Error() {
		t.Errorf("expected transmit state to record the failure")
	}
}

// TestReduce_RequestStateSnapshot verifies snapshot delivery goes through a
// command, keeping the reducer pure
func TestReduce_RequestStateSnapshot(t *testing.T) {
	cfg := testReducerConfig()
	s := NewDaemonState()

	reply := make(chan StateSnapshot, 1)
	rr := Reduce(s, RequestStateSnapshot{Reply: reply}, cfg)

	cmd, ok := findCommand[CmdPublishStateSnapshot](rr.Commands)
	if !ok {
		t.Fatalf("expected a publish snapshot command")
	}
	if cmd.Reply != reply {
		t.Errorf("expected the command to carry the requester's channel")
	}
	if len(cmd.Snapshot.Values) != len(Catalogue()) {
		t.Errorf("expected a full value set in the snapshot, got %d", len(cmd.Snapshot.Values))
	}
}
