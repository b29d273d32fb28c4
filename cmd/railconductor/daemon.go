package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop - Reducer-driven tick pipeline
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon loop is the only place that executes side effects (device
//     polls, UDP sends, mapping file I/O).
//   - Effect outcomes are turned into Events and fed back into the reducer.
//   - All mapping mutations arrive on the single events channel, so they
//     apply atomically between reductions; the tick pipeline never sees a
//     half-written registry.
//
// Refinements:
//   - Explicit event queue and command queue (no nested/re-entrant execution).
//   - Broadcasts fan out through a dedicated channel; a slow WS layer never
//     stalls the tick pipeline (non-blocking send, drop on overflow).
//
// ============================================================================

// runDaemon is the main daemon loop that:
//   - Receives Events from multiple sources (IPC, WS, watcher)
//   - Emits Tick events on the configured cadence
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands via runEffect and feeds observations back
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	fx *Effects,
	cfg ReducerConfig,
	state *DaemonState,
	tickHz int,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if state == nil {
		logger.Error("daemon state is nil")
		return
	}
	if tickHz <= 0 {
		tickHz = defaultTickHz
	}

	ticker := time.NewTicker(time.Second / time.Duration(tickHz))
	defer ticker.Stop()

	lastTick := time.Now()

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}
	enqueueCommands := func(cmds []Command) {
		if len(cmds) == 0 {
			return
		}
		cmdQueue = append(cmdQueue, cmds...)
	}
	publish := func(bcasts []StateBroadcast) {
		if broadcasts == nil {
			return
		}
		for _, b := range bcasts {
			select {
			case broadcasts <- b:
			default:
				logger.Warn("broadcast queue full, dropping", "broadcast", b)
			}
		}
	}

	// Reduce all queued events, enqueuing any resulting commands.
	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, cfg)
			if rr.State != nil {
				state = rr.State
			}
			enqueueCommands(rr.Commands)
			publish(rr.Broadcasts)
		}
	}

	// Execute all queued commands, enqueuing observation events.
	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			runEffect(fx, cmd, logger, func(obs Event) {
				enqueueEvent(obs)
			})

			// Observations should be reduced promptly to keep state coherent
			// and allow the reducer to emit follow-up commands (if any).
			flushEvents()
		}
	}

	// Load persisted mappings before the first tick.
	enqueueEvent(TimedEvent{Event: ReloadMappings{}, At: time.Now()})
	flushEvents()
	flushCommands()

	// Main loop
	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case act, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			enqueueEvent(TimedEvent{Event: act, At: time.Now()})
			flushEvents()
			flushCommands()

		case now := <-ticker.C:
			dt := now.Sub(lastTick).Seconds()
			lastTick = now
			enqueueEvent(Tick{Now: now, Dt: dt})
			flushEvents()
			flushCommands()
		}
	}
}

// NOTE:
// Command execution is implemented in `effects.go` as `runEffect(...)`.
// This file is only responsible for orchestrating event/command queues and
// reducer invocation.
