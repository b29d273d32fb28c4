package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("RailConductor v%s\n", version)
	fmt.Println("Joystick to train simulator input mapping daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  railconductor [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that reads joystick and gamepad devices (via the Linux")
	fmt.Println("  joystick interface), applies the configured control mappings, and")
	fmt.Println("  streams cab control frames to a train simulator over UDP. Mappings")
	fmt.Println("  are captured interactively and persisted as CSV.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to a YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -simulator-host string")
	fmt.Printf("        Simulator UDP host (default %q)\n", defaultSimulatorHost)
	fmt.Println()
	fmt.Println("  -simulator-port int")
	fmt.Printf("        Simulator UDP port (default %d)\n", defaultSimulatorPort)
	fmt.Println()
	fmt.Println("  -tick-hz int")
	fmt.Printf("        Sampling and transmit frequency in Hz (default %d)\n", defaultTickHz)
	fmt.Println()
	fmt.Println("  -device-glob string")
	fmt.Println("        Glob for joystick device nodes (default \"/dev/input/js*\")")
	fmt.Println()
	fmt.Println("  -deadzone float")
	fmt.Printf("        Default lever dead-zone for captured bindings, 0..1 (default %.2f)\n", defaultLeverDeadzone)
	fmt.Println()
	fmt.Println("  -activation float")
	fmt.Printf("        Axis activation threshold for buttons-on-axes and capture, 0..1 (default %.2f)\n", defaultActivation)
	fmt.Println()
	fmt.Println("  -capture-window-ms int")
	fmt.Printf("        Capture listening window in ms (default %d)\n", defaultCaptureWindowMS)
	fmt.Println()
	fmt.Println("  -mappings string")
	fmt.Println("        Path to the mappings CSV file (default \"~/.config/railconductor/mappings.csv\")")
	fmt.Println()
	fmt.Println("  -mappings-watch")
	fmt.Println("        Reload mappings when the CSV file changes on disk (default true)")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocketPath)
	fmt.Println()
	fmt.Println("  -control-port int")
	fmt.Printf("        WebSocket control panel listener port (default %d)\n", defaultControlWSPort)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with defaults, simulator on localhost")
	fmt.Println("  railconductor")
	fmt.Println()
	fmt.Println("  # Simulator on another machine, faster tick")
	fmt.Println("  railconductor -simulator-host 192.168.1.40 -tick-hz 30")
	fmt.Println()
	fmt.Println("  # Everything from a config file")
	fmt.Println("  railconductor -config /etc/railconductor/config.yaml")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to joystick devices (run as root or add user to 'input' group)")
	fmt.Println("  - Frames are fire-and-forget UDP; the simulator never replies")
	fmt.Println("  - Use railconductor-ctl to capture mappings and inspect daemon state")
	fmt.Println()
}

func main() {
	// Check for version/help flags early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	// Parse command-line flags
	var (
		configPath      = flag.String("config", "", "Path to a YAML config file")
		simulatorHost   = flag.String("simulator-host", defaultSimulatorHost, "Simulator UDP host")
		simulatorPort   = flag.Int("simulator-port", defaultSimulatorPort, "Simulator UDP port")
		tickHz          = flag.Int("tick-hz", defaultTickHz, "Sampling and transmit frequency in Hz")
		deviceGlob      = flag.String("device-glob", "/dev/input/js*", "Glob for joystick device nodes")
		deadzone        = flag.Float64("deadzone", defaultLeverDeadzone, "Default lever dead-zone for captured bindings (0..1)")
		activation      = flag.Float64("activation", defaultActivation, "Axis activation threshold (0..1)")
		captureWindowMS = flag.Int("capture-window-ms", defaultCaptureWindowMS, "Capture listening window in ms")
		mappingsPath    = flag.String("mappings", "~/.config/railconductor/mappings.csv", "Path to the mappings CSV file")
		mappingsWatch   = flag.Bool("mappings-watch", true, "Reload mappings when the CSV file changes on disk")
		ipcSocketPath   = flag.String("ipc-socket", defaultIPCSocketPath, "Unix domain socket path for IPC")
		controlPort     = flag.Int("control-port", defaultControlWSPort, "WebSocket control panel listener port")
		logLevelStr     = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion     = flag.Bool("version", false, "Print version and exit")
		showHelp        = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Build configuration: file (if any), then explicit flags on top.
	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	overrides := FlagOverrides{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "simulator-host":
			overrides.SimulatorHost = simulatorHost
		case "simulator-port":
			overrides.SimulatorPort = simulatorPort
		case "tick-hz":
			overrides.TickHz = tickHz
		case "device-glob":
			overrides.DeviceGlob = deviceGlob
		case "deadzone":
			overrides.Deadzone = deadzone
		case "activation":
			overrides.Activation = activation
		case "capture-window-ms":
			overrides.CaptureWindowMS = captureWindowMS
		case "mappings":
			overrides.MappingsPath = mappingsPath
		case "mappings-watch":
			overrides.MappingsWatch = mappingsWatch
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocketPath
		case "control-port":
			overrides.ControlPort = controlPort
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Parse and validate log level
	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	// Wire up the collaborators the effects layer needs.
	source := NewJoystickSource(cfg.Input.DeviceGlob, logger)
	defer source.Close()

	tx, err := NewTransmitter(cfg.Simulator.Host, cfg.Simulator.Port, logger)
	if err != nil {
		logger.Error("failed to open simulator socket", "error", err)
		os.Exit(1)
	}
	defer tx.Close()

	store := &MappingStore{Path: ExpandPath(cfg.Mappings.Path)}
	fx := &Effects{Source: source, Tx: tx, Store: store}

	state := NewDaemonState()
	events := make(chan Event, 64)
	broadcasts := make(chan StateBroadcast, 64)

	// Shutdown on SIGINT/SIGTERM cancels everything below.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Daemon brain: reducer loop, ticker, effects.
	g.Go(func() error {
		runDaemon(ctx, events, fx, cfg.ToReducerConfig(), state, cfg.Simulator.TickHz, broadcasts, logger)
		return nil
	})

	// IPC server for railconductor-ctl.
	g.Go(func() error {
		return runIPCServer(ctx, cfg.IPC.SocketPath, events, logger)
	})

	// WebSocket control panel.
	wsServer := NewServer(logger, events, ServerConfig{})
	mux := http.NewServeMux()
	wsServer.Register(mux, "/ws")
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Control.Port), Handler: mux}

	g.Go(func() error {
		wsServer.Hub().Run(ctx)
		return nil
	})
	g.Go(func() error {
		RunBroadcaster(ctx, wsServer.Hub(), broadcasts, logger)
		return nil
	})
	g.Go(func() error {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	// Mappings file watcher (optional).
	if cfg.Mappings.Watch {
		g.Go(func() error {
			return runMappingsWatcher(ctx, store.Path, events, logger)
		})
	}

	logger.Debug("starting railconductor", "version", version)
	logger.Debug("configuration",
		"simulator_host", cfg.Simulator.Host,
		"simulator_port", cfg.Simulator.Port,
		"tick_hz", cfg.Simulator.TickHz,
		"device_glob", cfg.Input.DeviceGlob,
		"deadzone", cfg.Input.Deadzone,
		"activation", cfg.Input.Activation,
		"capture_window_ms", cfg.Input.CaptureWindowMS,
		"mappings_path", store.Path,
		"mappings_watch", cfg.Mappings.Watch,
		"ipc_socket", cfg.IPC.SocketPath,
		"control_port", cfg.Control.Port)
	logger.Info("listening",
		"simulator", tx.Target(),
		"ipc", cfg.IPC.SocketPath,
		"control_ws", httpSrv.Addr,
		"tick_hz", cfg.Simulator.TickHz)

	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
