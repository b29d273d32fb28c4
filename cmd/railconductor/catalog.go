package main

import "fmt"

// FunctionID is the simulator's numeric id for a control function.
// These values are part of the UDP protocol and must not be renumbered.
type FunctionID uint16

const (
	FuncAlerter         FunctionID = 1
	FuncBell            FunctionID = 2
	FuncDistanceCounter FunctionID = 3
	FuncDynBrakeLever   FunctionID = 4
	FuncHeadlightFront  FunctionID = 5
	FuncHeadlightRear   FunctionID = 6
	FuncHorn            FunctionID = 8
	FuncIndBrakeLever   FunctionID = 9
	FuncIndBailoff      FunctionID = 10
	FuncParkBrakeSet    FunctionID = 12
	FuncParkBrakeRel    FunctionID = 13
	FuncReverserLever   FunctionID = 14
	FuncSander          FunctionID = 15
	FuncThrottleLever   FunctionID = 16
	FuncTrainBrakeLever FunctionID = 18
	FuncWiperSwitch     FunctionID = 19
	FuncCBControl       FunctionID = 37
	FuncCBDynBrake      FunctionID = 38
	FuncCBEngRun        FunctionID = 39
	FuncCabLight        FunctionID = 41
	FuncStepLight       FunctionID = 42
	FuncGaugeLight      FunctionID = 43
	FuncEOTEmgStop      FunctionID = 44
	FuncHEP             FunctionID = 52
	FuncSlowSpeedToggle FunctionID = 55
	FuncSlowSpeedInc    FunctionID = 56
	FuncSlowSpeedDec    FunctionID = 57
	FuncDPUThrottleInc  FunctionID = 58
	FuncDPUThrottleDec  FunctionID = 59
	FuncDPUDynSetup     FunctionID = 60
	FuncDPUFenceInc     FunctionID = 61
	FuncDPUFenceDec     FunctionID = 62
)

// InputType describes how a bound input is interpreted per tick.
type InputType string

const (
	TypeMomentary InputType = "momentary"
	TypeToggle    InputType = "toggle"
	TypeLever     InputType = "lever"
	TypeMultiway  InputType = "multiway"
)

// LeverProfile selects how a normalized lever position in [-1, 1] is scaled
// to the wire value byte. The profiles match what the simulator expects for
// each lever function.
type LeverProfile string

const (
	// ProfileContinuous maps [-1, 1] linearly onto 0..255.
	ProfileContinuous LeverProfile = "continuous"
	// ProfileNotched quantizes [-1, 1] onto 0..Notches discrete positions.
	ProfileNotched LeverProfile = "notched"
	// ProfileGate3 is a three-position gate: 0 below -1/3, 255 above +1/3,
	// 127 in the center band.
	ProfileGate3 LeverProfile = "gate3"
	// ProfileDetented has a hard OFF detent at the bottom of travel (value 0)
	// and maps the rest of the travel onto 1..255.
	ProfileDetented LeverProfile = "detented"
)

// FunctionSpec is one entry of the fixed function catalogue.
type FunctionSpec struct {
	ID   FunctionID
	Name string

	// Type is the default input type assigned when a capture binds this
	// function. The control surface may override it afterwards.
	Type InputType

	// Lever-only: scaling profile and notch count (ProfileNotched).
	Profile LeverProfile
	Notches int

	// Multiway-only: number of discrete states.
	States int
}

// catalogue is the canonical function catalogue, in canonical frame order.
// The order here defines the order of values inside a transmitted frame.
var catalogue = []FunctionSpec{
	{ID: FuncAlerter, Name: "Alerter", Type: TypeMomentary},
	{ID: FuncBell, Name: "Bell", Type: TypeMomentary},
	{ID: FuncDistanceCounter, Name: "Distance Counter", Type: TypeMultiway, States: 3},
	{ID: FuncDynBrakeLever, Name: "Dyn Brake Lever", Type: TypeLever, Profile: ProfileDetented},
	{ID: FuncHeadlightFront, Name: "Headlight Front", Type: TypeMultiway, States: 3},
	{ID: FuncHeadlightRear, Name: "Headlight Rear", Type: TypeMultiway, States: 3},
	{ID: FuncHorn, Name: "Horn", Type: TypeMomentary},
	{ID: FuncIndBrakeLever, Name: "Independent Brake Lever", Type: TypeLever, Profile: ProfileContinuous},
	{ID: FuncIndBailoff, Name: "Independent Bailoff", Type: TypeMomentary},
	{ID: FuncParkBrakeSet, Name: "Park-Brake Set", Type: TypeMomentary},
	{ID: FuncParkBrakeRel, Name: "Park-Brake Release", Type: TypeMomentary},
	{ID: FuncReverserLever, Name: "Reverser Lever", Type: TypeLever, Profile: ProfileGate3},
	{ID: FuncSander, Name: "Sander", Type: TypeMomentary},
	{ID: FuncThrottleLever, Name: "Throttle Lever", Type: TypeLever, Profile: ProfileNotched, Notches: 8},
	{ID: FuncTrainBrakeLever, Name: "Train Brake Lever", Type: TypeLever, Profile: ProfileContinuous},
	{ID: FuncWiperSwitch, Name: "Wiper Switch", Type: TypeMultiway, States: 4},
	{ID: FuncCBControl, Name: "Circuit Breaker Control", Type: TypeToggle},
	{ID: FuncCBDynBrake, Name: "Circuit Breaker DynBrake", Type: TypeToggle},
	{ID: FuncCBEngRun, Name: "Circuit Breaker EngRun", Type: TypeToggle},
	{ID: FuncCabLight, Name: "Cab Light Switch", Type: TypeToggle},
	{ID: FuncStepLight, Name: "Step Light Switch", Type: TypeToggle},
	{ID: FuncGaugeLight, Name: "Gauge Light Switch", Type: TypeToggle},
	{ID: FuncEOTEmgStop, Name: "EOT Emg Stop", Type: TypeMomentary},
	{ID: FuncHEP, Name: "HEP Switch", Type: TypeToggle},
	{ID: FuncSlowSpeedToggle, Name: "Slow Speed Toggle", Type: TypeToggle},
	{ID: FuncSlowSpeedInc, Name: "Slow Speed Increment", Type: TypeMomentary},
	{ID: FuncSlowSpeedDec, Name: "Slow Speed Decrement", Type: TypeMomentary},
	{ID: FuncDPUThrottleInc, Name: "DPU Throttle Increase", Type: TypeMomentary},
	{ID: FuncDPUThrottleDec, Name: "DPU Throttle Decrease", Type: TypeMomentary},
	{ID: FuncDPUDynSetup, Name: "DPU Dyn-Brake Setup", Type: TypeMomentary},
	{ID: FuncDPUFenceInc, Name: "DPU Fence Increase", Type: TypeMomentary},
	{ID: FuncDPUFenceDec, Name: "DPU Fence Decrease", Type: TypeMomentary},
}

var (
	catalogueByID   map[FunctionID]*FunctionSpec
	catalogueByName map[string]*FunctionSpec
)

func init() {
	catalogueByID = make(map[FunctionID]*FunctionSpec, len(catalogue))
	catalogueByName = make(map[string]*FunctionSpec, len(catalogue))
	for i := range catalogue {
		spec := &catalogue[i]
		catalogueByID[spec.ID] = spec
		catalogueByName[spec.Name] = spec
	}
}

// Catalogue returns the full catalogue in canonical frame order.
func Catalogue() []FunctionSpec {
	return catalogue
}

// LookupFunction resolves a function id against the catalogue.
func LookupFunction(id FunctionID) (*FunctionSpec, bool) {
	spec, ok := catalogueByID[id]
	return spec, ok
}

// LookupFunctionByName resolves a function by its display name.
func LookupFunctionByName(name string) (*FunctionSpec, bool) {
	spec, ok := catalogueByName[name]
	return spec, ok
}

// FunctionName returns the display name for an id, or a numeric fallback for
// ids not present in the catalogue.
func FunctionName(id FunctionID) string {
	if spec, ok := catalogueByID[id]; ok {
		return spec.Name
	}
	return fmt.Sprintf("function %d", id)
}
