package main

import (
	"fmt"
	"sort"
)

// InputKind is the kind of a physical input on a device.
type InputKind string

const (
	KindButton InputKind = "button"
	KindAxis   InputKind = "axis"
	KindHat    InputKind = "hat"
)

// HatDirection is a single hat (D-pad) direction. Hat samples are bitmasks of
// these values; a bound hat input is active while its direction bit is set.
type HatDirection uint8

const (
	HatUp    HatDirection = 0x01
	HatRight HatDirection = 0x02
	HatDown  HatDirection = 0x04
	HatLeft  HatDirection = 0x08
)

var hatDirectionNames = map[HatDirection]string{
	HatUp:    "up",
	HatRight: "right",
	HatDown:  "down",
	HatLeft:  "left",
}

func (d HatDirection) String() string {
	if name, ok := hatDirectionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dir(0x%02x)", uint8(d))
}

// ParseHatDirection parses a persisted hat direction name.
func ParseHatDirection(s string) (HatDirection, error) {
	for d, name := range hatDirectionNames {
		if name == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown hat direction %q", s)
}

// Selector identifies one physical input on one device.
// A Selector is immutable once bound; capture replaces the whole mapping.
type Selector struct {
	Device int
	Kind   InputKind
	Index  int

	// Direction is set for hat selectors only.
	Direction HatDirection
}

func (s Selector) String() string {
	if s.Kind == KindHat {
		return fmt.Sprintf("device %d hat %d %s", s.Device, s.Index, s.Direction)
	}
	return fmt.Sprintf("device %d %s %d", s.Device, s.Kind, s.Index)
}

// ============================================================================
// Per-type configuration (tagged variants)
// ============================================================================
// Each input type carries exactly the fields it needs. A Mapping whose Config
// variant does not match its Type is rejected at validation time.

// TypeConfig is the marker interface for per-input-type configuration.
type TypeConfig interface {
	typeConfigMarker()
}

// MomentaryConfig configures a momentary input: output 1 while active, else 0.
type MomentaryConfig struct{}

func (MomentaryConfig) typeConfigMarker() {}

// ToggleConfig configures a toggle input: output flips on each rising edge.
type ToggleConfig struct{}

func (ToggleConfig) typeConfigMarker() {}

// LeverConfig configures an axis-driven lever.
type LeverConfig struct {
	// Reverse negates the raw axis value before scaling.
	Reverse bool

	// Deadzone is the half-width of the neutral band around rest; raw values
	// inside it snap to exactly neutral. Zero means no dead-zone.
	Deadzone float64

	// Split, when non-nil, turns the lever into half of a split-axis pair:
	// raw values above the split point drive this function while PairedWith
	// is forced neutral, and symmetrically below.
	Split *float64

	// PairedWith is the partner function for split-axis and mode-toggle
	// operation. Zero when the lever is standalone.
	PairedWith FunctionID

	// ModeToggle, when non-nil, selects shared-axis mode-toggle operation:
	// each rising edge of the auxiliary input flips whether the axis drives
	// this function or PairedWith. The side not being driven holds its last
	// commanded value.
	ModeToggle *Selector
}

func (LeverConfig) typeConfigMarker() {}

// MultiwayConfig configures a multi-state switch.
type MultiwayConfig struct {
	// States is the number of discrete states (N >= 2).
	States int

	// Cyclic, when true, advances the state index by one modulo States on
	// each rising edge. When false the edge jumps directly to JumpTo.
	Cyclic bool

	// JumpTo is the absolute target index used when Cyclic is false.
	JumpTo int
}

func (MultiwayConfig) typeConfigMarker() {}

// defaultConfigFor builds the catalogue-default configuration for a function,
// used when a capture resolves. deadzone is the configured lever dead-zone.
func defaultConfigFor(spec *FunctionSpec, deadzone float64) TypeConfig {
	switch spec.Type {
	case TypeLever:
		return LeverConfig{Deadzone: deadzone}
	case TypeToggle:
		return ToggleConfig{}
	case TypeMultiway:
		return MultiwayConfig{States: spec.States, Cyclic: true}
	default:
		return MomentaryConfig{}
	}
}

// validateConfig checks that a config variant matches its input type and that
// its fields are self-consistent.
func validateConfig(typ InputType, cfg TypeConfig) error {
	switch typ {
	case TypeMomentary:
		if _, ok := cfg.(MomentaryConfig); !ok {
			return fmt.Errorf("momentary mapping with %T config", cfg)
		}
	case TypeToggle:
		if _, ok := cfg.(ToggleConfig); !ok {
			return fmt.Errorf("toggle mapping with %T config", cfg)
		}
	case TypeLever:
		lc, ok := cfg.(LeverConfig)
		if !ok {
			return fmt.Errorf("lever mapping with %T config", cfg)
		}
		if lc.Deadzone < 0 || lc.Deadzone >= 1 {
			return fmt.Errorf("lever deadzone %.3f out of range [0, 1)", lc.Deadzone)
		}
		if (lc.Split != nil || lc.ModeToggle != nil) && lc.PairedWith == 0 {
			return fmt.Errorf("shared-axis lever without paired function")
		}
		if lc.Split != nil && lc.ModeToggle != nil {
			return fmt.Errorf("lever cannot be both split-axis and mode-toggle")
		}
	case TypeMultiway:
		mc, ok := cfg.(MultiwayConfig)
		if !ok {
			return fmt.Errorf("multiway mapping with %T config", cfg)
		}
		if mc.States < 2 {
			return fmt.Errorf("multiway needs at least 2 states, got %d", mc.States)
		}
		if !mc.Cyclic && (mc.JumpTo < 0 || mc.JumpTo >= mc.States) {
			return fmt.Errorf("multiway jump target %d out of range [0, %d)", mc.JumpTo, mc.States)
		}
	default:
		return fmt.Errorf("unknown input type %q", typ)
	}
	return nil
}

// Mapping binds one function to one physical input with a typed config.
type Mapping struct {
	Function FunctionID
	Selector Selector
	Type     InputType
	Config   TypeConfig
}

// Validate checks the mapping against the catalogue and, when caps are known
// for the device, against the device's capability bounds.
func (m Mapping) Validate(caps map[int]DeviceInfo) error {
	if _, ok := LookupFunction(m.Function); !ok {
		return fmt.Errorf("unknown function id %d", m.Function)
	}
	if err := validateConfig(m.Type, m.Config); err != nil {
		return err
	}
	if m.Selector.Index < 0 {
		return fmt.Errorf("negative input index %d", m.Selector.Index)
	}
	if m.Selector.Kind == KindHat && m.Selector.Direction == 0 {
		return fmt.Errorf("hat mapping without direction")
	}
	info, known := caps[m.Selector.Device]
	if !known {
		// Device not seen yet; an out-of-range index on it reads as neutral,
		// so the mapping is accepted and simply stays inert.
		return nil
	}
	switch m.Selector.Kind {
	case KindButton:
		if m.Selector.Index >= info.Buttons {
			return fmt.Errorf("button index %d out of range (device %d has %d buttons)", m.Selector.Index, m.Selector.Device, info.Buttons)
		}
	case KindAxis:
		if m.Selector.Index >= info.Axes {
			return fmt.Errorf("axis index %d out of range (device %d has %d axes)", m.Selector.Index, m.Selector.Device, info.Axes)
		}
	case KindHat:
		if m.Selector.Index >= info.Hats {
			return fmt.Errorf("hat index %d out of range (device %d has %d hats)", m.Selector.Index, m.Selector.Device, info.Hats)
		}
	default:
		return fmt.Errorf("unknown input kind %q", m.Selector.Kind)
	}
	return nil
}

// ============================================================================
// Registry
// ============================================================================

// Registry holds at most one mapping per function. It is reducer-owned state:
// all mutation happens between reductions on the daemon goroutine, so the
// tick pipeline always observes a complete, consistent mapping set.
type Registry struct {
	byFunction map[FunctionID]Mapping
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byFunction: make(map[FunctionID]Mapping)}
}

// Get returns the mapping for a function, if bound.
func (r *Registry) Get(id FunctionID) (Mapping, bool) {
	m, ok := r.byFunction[id]
	return m, ok
}

// Set binds a function, replacing any prior mapping wholesale.
func (r *Registry) Set(m Mapping) {
	r.byFunction[m.Function] = m
}

// Clear removes the mapping for a function. Returns true if one was bound.
func (r *Registry) Clear(id FunctionID) bool {
	if _, ok := r.byFunction[id]; !ok {
		return false
	}
	delete(r.byFunction, id)
	return true
}

// ReplaceAll swaps the full mapping set in one step.
func (r *Registry) ReplaceAll(mappings []Mapping) {
	next := make(map[FunctionID]Mapping, len(mappings))
	for _, m := range mappings {
		next[m.Function] = m
	}
	r.byFunction = next
}

// All returns the current mappings in canonical catalogue order, for
// persistence and the control surface.
func (r *Registry) All() []Mapping {
	out := make([]Mapping, 0, len(r.byFunction))
	for _, spec := range Catalogue() {
		if m, ok := r.byFunction[spec.ID]; ok {
			out = append(out, m)
		}
	}
	// Mappings outside the catalogue still appear, sorted by id, so the
	// output always covers the whole registry.
	if len(out) != len(r.byFunction) {
		seen := make(map[FunctionID]bool, len(out))
		for _, m := range out {
			seen[m.Function] = true
		}
		var extra []Mapping
		for id, m := range r.byFunction {
			if !seen[id] {
				extra = append(extra, m)
			}
		}
		sort.Slice(extra, func(i, j int) bool { return extra[i].Function < extra[j].Function })
		out = append(out, extra...)
	}
	return out
}

// Len returns the number of bound functions.
func (r *Registry) Len() int { return len(r.byFunction) }
