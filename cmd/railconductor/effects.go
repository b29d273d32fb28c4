package main

import (
	"log/slog"
	"time"
)

// Effects bundles the collaborators the effects layer is allowed to touch:
// the device source, the UDP transmitter, and the mapping store.
type Effects struct {
	Source DeviceSource
	Tx     *Transmitter
	Store  *MappingStore
}

// runEffect executes a single reducer-emitted Command (side effect) against
// external systems and emits observation Events via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced
//   by the daemon loop.
// - The daemon loop is responsible for sequencing:
//   Reduce -> Commands -> runEffect -> Events -> Reduce.
func runEffect(
	fx *Effects,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		// No place to report observations/errors; nothing sensible to do.
		return
	}

	now := time.Now()

	switch c := cmd.(type) {
	case CmdSampleDevices:
		if fx == nil || fx.Source == nil {
			onEvent(EffectFailed{Command: cmd, Err: errNoSource{}, At: now})
			return
		}
		onEvent(SamplesObserved{Samples: pollDevices(fx.Source), At: now})

	case CmdTransmitFrame:
		if fx == nil || fx.Tx == nil {
			onEvent(EffectFailed{Command: cmd, Err: errNoTransmitter{}, At: now})
			return
		}
		err := fx.Tx.Send(c.Frame.Encode())
		onEvent(FrameTransmitted{Err: err, At: now})

	case CmdSaveMappings:
		if fx == nil || fx.Store == nil {
			onEvent(EffectFailed{Command: cmd, Err: errNoStore{}, At: now})
			return
		}
		if err := fx.Store.Save(c.Records); err != nil {
			logger.Error("mappings save failed", "path", fx.Store.Path, "error", err)
			onEvent(EffectFailed{Command: cmd, Err: err, At: now})
			return
		}
		logger.Debug("mappings saved", "path", fx.Store.Path, "records", len(c.Records))

	case CmdLoadMappings:
		if fx == nil || fx.Store == nil {
			onEvent(EffectFailed{Command: cmd, Err: errNoStore{}, At: now})
			return
		}
		records, warnings, err := fx.Store.Load()
		if err != nil {
			logger.Error("mappings load failed", "path", fx.Store.Path, "error", err)
			onEvent(EffectFailed{Command: cmd, Err: err, At: now})
			return
		}
		for _, w := range warnings {
			logger.Warn("invalid mapping record", "path", fx.Store.Path, "detail", w)
		}
		onEvent(MappingRecordsLoaded{Records: records, Warnings: warnings, At: now})

	case CmdPublishStateSnapshot:
		// Deliver reducer-produced snapshot to the requester.
		// This keeps the reducer pure by moving the channel send into the
		// effects layer.
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the effects worker indefinitely.
		select {
		case c.Reply <- c.Snapshot:
			// delivered
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(EffectFailed{Command: cmd, Err: errUnknownCommand{cmd: cmd}, At: now})
	}
}

// errNoSource indicates a device poll was requested without a device source.
type errNoSource struct{}

func (errNoSource) Error() string { return "no device source" }

// errNoTransmitter indicates a frame send was requested without a transmitter.
type errNoTransmitter struct{}

func (errNoTransmitter) Error() string { return "no transmitter" }

// errNoStore indicates mapping file I/O was requested without a store.
type errNoStore struct{}

func (errNoStore) Error() string { return "no mapping store" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
