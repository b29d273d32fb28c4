package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// The IPC server allows external clients to send JSON actions to the daemon
// via a Unix domain socket. This enables:
//   - Remote control via the railconductor-ctl tool
//   - Scripted capture/mapping management
//   - Integration with cab hardware setup tooling
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "action_name", "data": {...}}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
//   - "get_state" responds: {"status": "ok", "state": {...}}
// ============================================================================

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string          `json:"status"`          // "ok" or "error"
	Error  string          `json:"error,omitempty"` // error message if status == "error"
	State  json.RawMessage `json:"state,omitempty"` // snapshot payload for get_state
}

// ipcSnapshotTimeout bounds the get_state round-trip through the reducer.
const ipcSnapshotTimeout = 1 * time.Second

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, events chan<- Event, logger *slog.Logger) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	// Make socket accessible (consider security implications in production)
	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Exit cleanly on shutdown/close.
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}

			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(conn, events, logger)
	}
}

// handleIPCConnection handles a single IPC connection
func handleIPCConnection(conn net.Conn, events chan<- Event, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("IPC received", "line", line)

		// get_state is a request/response exchange, not a fire-and-forget
		// action: it round-trips a snapshot through the reducer.
		var peek ActionEnvelope
		if err := json.Unmarshal([]byte(line), &peek); err == nil && peek.Type == "get_state" {
			handleIPCGetState(encoder, events, logger)
			continue
		}

		// Parse action from JSON (payload actions only; the daemon assigns
		// timestamps via TimedEvent)
		ev, err := UnmarshalAction([]byte(line))
		if err != nil {
			response := IPCResponse{
				Status: "error",
				Error:  fmt.Sprintf("parse action: %v", err),
			}
			if encErr := encoder.Encode(response); encErr != nil {
				logger.Error("IPC failed to send error response", "error", encErr)
			}
			continue
		}

		// Send action to daemon
		select {
		case events <- ev:
			response := IPCResponse{Status: "ok"}
			if encErr := encoder.Encode(response); encErr != nil {
				logger.Error("IPC failed to send success response", "error", encErr)
			}
		default:
			// Event channel is full (should rarely happen with buffer)
			response := IPCResponse{
				Status: "error",
				Error:  "event queue full",
			}
			if encErr := encoder.Encode(response); encErr != nil {
				logger.Error("IPC failed to send error response", "error", encErr)
			}
		}
	}

	logger.Debug("IPC connection closed")
}

// handleIPCGetState requests a snapshot through the reducer and writes it back.
func handleIPCGetState(encoder *json.Encoder, events chan<- Event, logger *slog.Logger) {
	reply := make(chan StateSnapshot, 1)

	select {
	case events <- RequestStateSnapshot{Reply: reply}:
	default:
		_ = encoder.Encode(IPCResponse{Status: "error", Error: "event queue full"})
		return
	}

	select {
	case snap := <-reply:
		data, err := json.Marshal(snap)
		if err != nil {
			_ = encoder.Encode(IPCResponse{Status: "error", Error: fmt.Sprintf("marshal state: %v", err)})
			return
		}
		if err := encoder.Encode(IPCResponse{Status: "ok", State: data}); err != nil {
			logger.Error("IPC failed to send state response", "error", err)
		}

	case <-time.After(ipcSnapshotTimeout):
		_ = encoder.Encode(IPCResponse{Status: "error", Error: "snapshot timed out"})
	}
}

// ============================================================================
// IPC Client Utility Functions
// ============================================================================
// Used by the ctl tool and tests to talk to a running daemon.
// ============================================================================

// SendIPCAction sends an action to the daemon via IPC and returns the response
func SendIPCAction(socketPath string, ev Event) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := MarshalAction(ev)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", strings.TrimSpace(string(data))); err != nil {
		return fmt.Errorf("send action: %w", err)
	}

	decoder := json.NewDecoder(conn)
	var resp IPCResponse
	if err := decoder.Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}

	return nil
}

// FetchIPCState requests a state snapshot from the daemon via IPC.
func FetchIPCState(socketPath string) (StateSnapshot, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return StateSnapshot{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, `{"type":"get_state"}`); err != nil {
		return StateSnapshot{}, fmt.Errorf("send request: %w", err)
	}

	decoder := json.NewDecoder(conn)
	var resp IPCResponse
	if err := decoder.Decode(&resp); err != nil {
		return StateSnapshot{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return StateSnapshot{}, fmt.Errorf("ipc error: %s", resp.Error)
	}

	var snap StateSnapshot
	if err := json.Unmarshal(resp.State, &snap); err != nil {
		return StateSnapshot{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return snap, nil
}
