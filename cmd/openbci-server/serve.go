package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/muurk/openbci/internal/config"
	"github.com/muurk/openbci/internal/device"
	"github.com/muurk/openbci/internal/logging"
	"github.com/muurk/openbci/internal/protocol"
	"github.com/muurk/openbci/internal/serialport"
	"github.com/muurk/openbci/internal/server"
	"github.com/muurk/openbci/internal/simulator"
	"github.com/muurk/openbci/internal/sink"
)

const (
	connectTimeout = 10 * time.Second
	bannerTimeout  = 5 * time.Second
)

// Serve command flags. They override the config file only when set.
var (
	devicePort    string
	baudRate      int
	readTimeout   time.Duration
	strategyName  string
	host          string
	httpPort      int
	noAdvertise   bool
	instanceName  string
	logLevel      string
	autoStart     bool
	csvDir        string
	redisAddr     string
	debugLogPath  string
	diagnosticsN  int
	subscriberBuf int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the board and start the HTTP server",
	Long: `Connect to the OpenBCI board and serve its samples over HTTP.

Settings come from the config file (see 'openbci-server init-config') and
can be overridden with flags. The board is reset on connect and its banner
is kept in /status.

Endpoints:
  POST /control/start|stop|reset     control the stream
  POST /control/debug?enabled=true   raw byte mode (logged to the debug log)
  GET  /stream                       server-sent events
  GET  /ws                           WebSocket
  GET  /status                       connection state and watchdog stats
  GET  /metrics                      Prometheus metrics`,
	Example: `  # Auto-detect the dongle and serve on :8080
  openbci-server serve

  # Use a specific port and start streaming right away
  openbci-server serve --port /dev/ttyUSB0 --auto-start

  # Try everything out without hardware
  openbci-server serve --port sim --auto-start --log-level info

  # Record to CSV and republish to Redis
  openbci-server serve --csv-dir ./recordings --redis-addr localhost:6379`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&devicePort, "port", "", `Serial port, "auto" or "sim"`)
	f.IntVar(&baudRate, "baud", 0, "Serial speed")
	f.DurationVar(&readTimeout, "read-timeout", 0, "Per-read serial timeout (0 blocks)")
	f.StringVar(&strategyName, "strategy", "", "Decode strategy (auto, scalar, word)")
	f.StringVar(&host, "host", "", "HTTP listen host")
	f.IntVar(&httpPort, "http-port", 0, "HTTP listen port")
	f.BoolVar(&noAdvertise, "no-advertise", false, "Do not announce the server over mDNS")
	f.StringVar(&instanceName, "instance", "", "mDNS instance name (default: hostname)")
	f.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.BoolVar(&autoStart, "auto-start", false, "Start streaming once the board has answered")
	f.StringVar(&csvDir, "csv-dir", "", "Record samples to a CSV file in this directory")
	f.StringVar(&redisAddr, "redis-addr", "", "Republish samples to this Redis server")
	f.StringVar(&debugLogPath, "debug-log", "", "File for bytes received in debug mode")
	f.IntVar(&diagnosticsN, "diagnostics-every", 0, "Log one sample in N at debug level")
	f.IntVar(&subscriberBuf, "subscriber-buffer", 0, "Per-client sample queue length")
}

// applyFlags copies explicitly set flags over the loaded config
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) {
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}

	set("port", func() { cfg.Device.Port = devicePort })
	set("baud", func() { cfg.Device.Baud = baudRate })
	set("read-timeout", func() { cfg.Device.ReadTimeout = readTimeout })
	set("strategy", func() { cfg.Device.Strategy = strategyName })
	set("host", func() { cfg.Server.Host = host })
	set("http-port", func() { cfg.Server.Port = httpPort })
	set("no-advertise", func() { cfg.Server.Advertise = !noAdvertise })
	set("instance", func() { cfg.Server.InstanceName = instanceName })
	set("log-level", func() { cfg.Logging.Level = logLevel })
	set("auto-start", func() { cfg.Stream.AutoStart = autoStart })
	set("csv-dir", func() {
		cfg.Sinks.CSV.Enabled = true
		cfg.Sinks.CSV.Dir = csvDir
	})
	set("redis-addr", func() {
		cfg.Sinks.Redis.Enabled = true
		cfg.Sinks.Redis.Addr = redisAddr
	})
	set("debug-log", func() { cfg.Sinks.DebugLog.Path = debugLogPath })
	set("diagnostics-every", func() { cfg.Stream.DiagnosticsEvery = diagnosticsN })
	set("subscriber-buffer", func() { cfg.Stream.SubscriberBuffer = subscriberBuf })
}

// boardDialer sends the simulator endpoint to the simulator and
// everything else to the serial port
type boardDialer struct {
	serial device.Dialer
	sim    device.Dialer
}

func newBoardDialer(cfg config.DeviceConfig) *boardDialer {
	sd := serialport.NewDialer()
	sd.BaudRate = cfg.Baud
	sd.ReadTimeout = cfg.ReadTimeout
	return &boardDialer{serial: sd, sim: simulator.Dialer{}}
}

func (d *boardDialer) Dial(ctx context.Context, endpoint string) (device.Transport, error) {
	if endpoint == simulator.Endpoint {
		return d.sim.Dial(ctx, endpoint)
	}
	return d.serial.Dial(ctx, endpoint)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Logging.Level); err != nil {
		return err
	}
	defer logging.Sync()

	strategy, _ := protocol.StrategyByName(cfg.Device.Strategy)
	logging.Info("Decode strategy selected", zap.String("strategy", strategy.Name()))

	commander := device.NewCommander(newBoardDialer(cfg.Device),
		device.WithStrategy(strategy),
		device.WithDebugSink(sink.NewDebugLog(cfg.Sinks.DebugLog.Path)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- commander.Run(ctx) }()

	// Run's exit hangs up the board, so wait for it on every return path
	defer func() {
		cancel()
		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn("Device loop ended with error", zap.Error(err))
		}
	}()

	closeSinks, err := attachSinks(ctx, cfg, commander)
	if err != nil {
		return err
	}
	defer closeSinks()

	if err := connect(commander, cfg.Device.Port); err != nil {
		return err
	}
	fmt.Printf("Connected to %s\n", cfg.Device.Port)

	if cfg.Stream.AutoStart {
		if err := startWhenReady(commander); err != nil {
			return err
		}
		fmt.Println("Streaming started")
	}

	srv := server.New(&server.Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		SubscriberBuffer: cfg.Stream.SubscriberBuffer,
		Advertise:        cfg.Server.Advertise,
		InstanceName:     cfg.Server.InstanceName,
		Endpoint:         cfg.Device.Port,
	}, commander)

	fmt.Printf("Serving on http://%s:%d (Ctrl+C to stop)\n", cfg.Server.Host, cfg.Server.Port)
	return srv.Start(ctx)
}

// attachSinks subscribes the configured consumers. The returned func
// closes them.
func attachSinks(ctx context.Context, cfg *config.Config, commander *device.Commander) (func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Sinks.CSV.Enabled {
		csv := sink.NewCSVLogger(cfg.Sinks.CSV.Dir)
		if _, err := commander.Subscribe(csv.HandleSample); err != nil {
			return closeAll, err
		}
		closers = append(closers, func() {
			if err := csv.Close(); err != nil {
				logging.Warn("CSV close failed", zap.Error(err))
			}
		})
	}

	if r := cfg.Sinks.Redis; r.Enabled {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := sink.DialRedis(dialCtx, r.Addr, r.Password, r.DB)
		cancel()
		if err != nil {
			closeAll()
			return func() {}, err
		}
		pub := sink.NewRedisPublisher(client, sink.RedisOptions{
			Channel:    r.Channel,
			HistoryKey: r.HistoryKey,
			History:    r.History,
		})
		if _, err := commander.Subscribe(pub.HandleSample); err != nil {
			_ = pub.Close()
			closeAll()
			return func() {}, err
		}
		closers = append(closers, func() { _ = pub.Close() })
	}

	if n := cfg.Stream.DiagnosticsEvery; n > 0 {
		if _, err := commander.Subscribe(sink.NewDiagnostics(n).HandleSample); err != nil {
			closeAll()
			return func() {}, err
		}
	}

	return closeAll, nil
}

// connect opens the board and waits for the transport
func connect(commander *device.Commander, endpoint string) error {
	errc, err := commander.Connect(endpoint)
	if err != nil {
		return err
	}

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
		}
		return nil
	case <-time.After(connectTimeout):
		_ = commander.HangUp()
		return fmt.Errorf("timed out connecting to %s", endpoint)
	}
}

// startWhenReady starts streaming once the board has answered the reset
// sent on connect. Starting earlier would read the banner as frames.
func startWhenReady(commander *device.Commander) error {
	deadline := time.Now().Add(bannerTimeout)
	for {
		st, err := commander.Status()
		if err != nil {
			return err
		}
		if st.LastResponse != "" {
			logging.Info("Board ready", zap.String("banner", st.LastResponse))
			return commander.StartStream()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("board did not answer the reset within %s", bannerTimeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
