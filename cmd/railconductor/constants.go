package main

// Tick loop and transform defaults
const (
	defaultTickHz = 10 // Transmit/sample loop frequency (Hz)

	// defaultActivation is the axis magnitude treated as a deliberate press
	// for axis-bound momentary/toggle/multiway inputs and for capture.
	defaultActivation = 0.7

	// defaultLeverDeadzone snaps small axis magnitudes to neutral on levers.
	defaultLeverDeadzone = 0.05

	// defaultCaptureWindowMS bounds how long a capture listens before
	// timing out.
	defaultCaptureWindowMS = 5000
)

// Simulator endpoint defaults
const (
	defaultSimulatorHost = "127.0.0.1"
	defaultSimulatorPort = 15192
)

// Lever scaling constants
const (
	// reverserGate is the axis magnitude beyond which the reverser leaves
	// its centered position.
	reverserGate = 1.0 / 3.0

	// dynBrakeDetent is the axis position at or below which the dyn brake
	// reads as fully released (setup detent).
	dynBrakeDetent = -0.95
)

// Control surface defaults
const (
	defaultIPCSocketPath = "/tmp/railconductor.sock"
	defaultControlWSPort = 3310
)
