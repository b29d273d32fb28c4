package main

import "testing"

// TestCatalogue_CircuitBreakerToggles verifies the breaker switches are part
// of the catalogue as toggles and occupy frame positions in id order
func TestCatalogue_CircuitBreakerToggles(t *testing.T) {
	breakers := []struct {
		id   FunctionID
		name string
	}{
		{FuncCBControl, "Circuit Breaker Control"},
		{FuncCBDynBrake, "Circuit Breaker DynBrake"},
		{FuncCBEngRun, "Circuit Breaker EngRun"},
	}

	for _, b := range breakers {
		spec, ok := LookupFunction(b.id)
		if !ok {
			t.Errorf("function %d missing from catalogue", b.id)
			continue
		}
		if spec.Name != b.name {
			t.Errorf("function %d: expected name %q, got %q", b.id, b.name, spec.Name)
		}
		if spec.Type != TypeToggle {
			t.Errorf("function %d: expected toggle default, got %q", b.id, spec.Type)
		}
	}

	// Breakers sit between the wiper switch and the cab light in frame order.
	frame := BuildFrame(map[FunctionID]uint8{FuncCBDynBrake: 1})
	wiper, control, cab := -1, -1, -1
	for i, fv := range frame.Values {
		switch fv.ID {
		case FuncWiperSwitch:
			wiper = i
		case FuncCBControl:
			control = i
		case FuncCabLight:
			cab = i
		}
	}
	if wiper < 0 || control < 0 || cab < 0 {
		t.Fatalf("expected wiper, breaker, and cab light positions, got %d %d %d", wiper, control, cab)
	}
	if !(wiper < control && control < cab) {
		t.Errorf("breaker out of canonical order: wiper=%d breaker=%d cab=%d", wiper, control, cab)
	}
	if v, _ := frame.Value(FuncCBDynBrake); v != 1 {
		t.Errorf("expected dyn brake breaker value 1 in frame, got %d", v)
	}
}
