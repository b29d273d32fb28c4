package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// railconductor-ctl - Command-line IPC Client
// ============================================================================
// This tool sends commands to the railconductor daemon via IPC.
//
// Usage:
//   railconductor-ctl capture 16
//   railconductor-ctl cancel
//   railconductor-ctl clear 16
//   railconductor-ctl reverse 16 on
//   railconductor-ctl enable 0
//   railconductor-ctl disable 0
//   railconductor-ctl reload
//   railconductor-ctl state
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/railconductor.sock)
// ============================================================================

// Action types (duplicated from the daemon package for a standalone binary)
type Action interface{}

type StartCapture struct {
	Function uint16 `json:"function"`
}

type CancelCapture struct{}

type ClearMapping struct {
	Function uint16 `json:"function"`
}

type ReloadMappings struct{}

type SetDeviceEnabled struct {
	Device  int  `json:"device"`
	Enabled bool `json:"enabled"`
}

type SetReverse struct {
	Function uint16 `json:"function"`
	Reverse  bool   `json:"reverse"`
}

// ActionEnvelope wraps actions for JSON
type ActionEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

// Snapshot types (duplicated from the daemon package for a standalone binary)
type functionValue struct {
	ID    uint16 `json:"id"`
	Value uint8  `json:"value"`
}

type mappingRecord struct {
	FunctionID uint16            `json:"function_id"`
	InputType  string            `json:"input_type"`
	DeviceID   int               `json:"device_id"`
	InputKind  string            `json:"input_kind"`
	InputIndex int               `json:"input_index"`
	Reverse    bool              `json:"reverse,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

type deviceStatus struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Axes      int    `json:"axes"`
	Buttons   int    `json:"buttons"`
	Hats      int    `json:"hats"`
	Connected bool   `json:"connected"`
	Enabled   bool   `json:"enabled"`
}

type captureStatus struct {
	Listening bool      `json:"listening"`
	Function  uint16    `json:"function,omitempty"`
	Deadline  time.Time `json:"deadline,omitempty"`
}

type stateSnapshot struct {
	Values   []functionValue `json:"values"`
	Mappings []mappingRecord `json:"mappings"`
	Devices  []deviceStatus  `json:"devices"`
	Capture  captureStatus   `json:"capture"`

	TransmitOK    bool      `json:"transmit_ok"`
	TransmitKnown bool      `json:"transmit_known"`
	TransmitErr   string    `json:"transmit_error,omitempty"`
	TransmitAt    time.Time `json:"transmit_at,omitempty"`
}

func main() {
	socketPath := "/tmp/railconductor.sock"

	// Parse arguments
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Parse command
	switch args[0] {
	case "capture":
		fn := parseFunctionArg(args, "capture")
		if err := runCapture(socketPath, fn); err != nil {
			fail(err)
		}

	case "cancel":
		if err := sendAction(socketPath, CancelCapture{}); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "clear":
		fn := parseFunctionArg(args, "clear")
		if err := sendAction(socketPath, ClearMapping{Function: fn}); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "reverse":
		if len(args) < 3 || (args[2] != "on" && args[2] != "off") {
			fmt.Fprintf(os.Stderr, "error: reverse requires a function id and on|off\n")
			os.Exit(1)
		}
		fn := parseFunctionArg(args, "reverse")
		if err := sendAction(socketPath, SetReverse{Function: fn, Reverse: args[2] == "on"}); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "enable", "disable":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: %s requires a device id\n", args[0])
			os.Exit(1)
		}
		dev, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid device id: %v\n", err)
			os.Exit(1)
		}
		if err := sendAction(socketPath, SetDeviceEnabled{Device: dev, Enabled: args[0] == "enable"}); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "reload":
		if err := sendAction(socketPath, ReloadMappings{}); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "state":
		snap, err := fetchState(socketPath)
		if err != nil {
			fail(err)
		}
		printState(snap)

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func parseFunctionArg(args []string, cmd string) uint16 {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "error: %s requires a function id\n", cmd)
		os.Exit(1)
	}
	n, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid function id: %v\n", err)
		os.Exit(1)
	}
	return uint16(n)
}

// runCapture starts a capture and polls the daemon until it resolves, so the
// result shows up in the terminal instead of only on the control panel.
func runCapture(socketPath string, fn uint16) error {
	if err := sendAction(socketPath, StartCapture{Function: fn}); err != nil {
		return err
	}
	fmt.Printf("listening for input for function %d... move or press the desired control\n", fn)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)

		snap, err := fetchState(socketPath)
		if err != nil {
			return err
		}
		if snap.Capture.Listening {
			continue
		}

		for _, m := range snap.Mappings {
			if m.FunctionID == fn {
				fmt.Printf("captured: function %d -> device %d %s %d (type %s)\n",
					fn, m.DeviceID, m.InputKind, m.InputIndex, m.InputType)
				return nil
			}
		}
		fmt.Println("no input captured (window expired or capture was cancelled)")
		return nil
	}
	return fmt.Errorf("timed out waiting for the capture window to close")
}

func fetchState(socketPath string) (stateSnapshot, error) {
	resp, err := roundTrip(socketPath, ActionEnvelope{Type: "get_state"})
	if err != nil {
		return stateSnapshot{}, err
	}
	var snap stateSnapshot
	if err := json.Unmarshal(resp.State, &snap); err != nil {
		return stateSnapshot{}, fmt.Errorf("decode state: %w", err)
	}
	return snap, nil
}

func printState(snap stateSnapshot) {
	fmt.Println("devices:")
	if len(snap.Devices) == 0 {
		fmt.Println("  (none)")
	}
	for _, d := range snap.Devices {
		status := "connected"
		if !d.Connected {
			status = "disconnected"
		}
		if !d.Enabled {
			status += ", disabled"
		}
		fmt.Printf("  [%d] %s (%d axes, %d buttons, %d hats) %s\n",
			d.ID, d.Name, d.Axes, d.Buttons, d.Hats, status)
	}

	fmt.Println("mappings:")
	if len(snap.Mappings) == 0 {
		fmt.Println("  (none)")
	}
	for _, m := range snap.Mappings {
		line := fmt.Sprintf("  function %d: device %d %s %d type %s",
			m.FunctionID, m.DeviceID, m.InputKind, m.InputIndex, m.InputType)
		if m.Reverse {
			line += " reversed"
		}
		fmt.Println(line)
	}

	if snap.Capture.Listening {
		fmt.Printf("capture: listening for function %d until %s\n",
			snap.Capture.Function, snap.Capture.Deadline.Format(time.RFC3339))
	}

	switch {
	case !snap.TransmitKnown:
		fmt.Println("transmit: no frame sent yet")
	case snap.TransmitOK:
		fmt.Printf("transmit: ok (last frame %s)\n", snap.TransmitAt.Format(time.RFC3339))
	default:
		fmt.Printf("transmit: failing: %s\n", snap.TransmitErr)
	}
}

func sendAction(socketPath string, action Action) error {
	env, err := marshalAction(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	resp, err := roundTrip(socketPath, env)
	if err != nil {
		return err
	}
	if resp.Status == "error" {
		return fmt.Errorf("daemon error: %s", resp.Error)
	}
	return nil
}

func roundTrip(socketPath string, env ActionEnvelope) (IPCResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(env)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal envelope: %w", err)
	}

	// Send action (line-delimited JSON)
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send action: %w", err)
	}

	var response IPCResponse
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if response.Status == "error" {
		return response, fmt.Errorf("daemon error: %s", response.Error)
	}
	return response, nil
}

func marshalAction(action Action) (ActionEnvelope, error) {
	var env ActionEnvelope

	switch a := action.(type) {
	case StartCapture:
		env.Type = "start_capture"
		data, err := json.Marshal(a)
		if err != nil {
			return env, err
		}
		env.Data = data

	case CancelCapture:
		env.Type = "cancel_capture"

	case ClearMapping:
		env.Type = "clear_mapping"
		data, err := json.Marshal(a)
		if err != nil {
			return env, err
		}
		env.Data = data

	case ReloadMappings:
		env.Type = "reload_mappings"

	case SetDeviceEnabled:
		env.Type = "set_device_enabled"
		data, err := json.Marshal(a)
		if err != nil {
			return env, err
		}
		env.Data = data

	case SetReverse:
		env.Type = "set_reverse"
		data, err := json.Marshal(a)
		if err != nil {
			return env, err
		}
		env.Data = data

	default:
		return env, fmt.Errorf("unknown action type: %T", action)
	}

	return env, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `railconductor-ctl - Control the railconductor daemon via IPC

Usage:
  railconductor-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/railconductor.sock)

Commands:
  capture <function-id>       Listen for the next input and bind it to the function
  cancel                      Cancel an in-progress capture
  clear <function-id>         Remove the mapping for a function
  reverse <function-id> on|off  Set axis reversal on a lever mapping
  enable <device-id>          Enable a device
  disable <device-id>         Disable a device (its outputs hold their last value)
  reload                      Reload mappings from the CSV file
  state                       Print devices, mappings, capture and transmit status
  help, -h, --help            Show this help message

Examples:
  railconductor-ctl capture 16
  railconductor-ctl reverse 16 on
  railconductor-ctl -socket /var/run/railconductor.sock state
`)
}
