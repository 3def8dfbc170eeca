// Command fall-sensor watches an accelerometer for free fall and reports it on
// an LED matrix and a piezo speaker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/fall-sensor/internal/accel"
	"github.com/sweeney/fall-sensor/internal/alarm"
	"github.com/sweeney/fall-sensor/internal/board"
	"github.com/sweeney/fall-sensor/internal/config"
	"github.com/sweeney/fall-sensor/internal/display"
	"github.com/sweeney/fall-sensor/internal/logging"
	"github.com/sweeney/fall-sensor/internal/logic"
	"github.com/sweeney/fall-sensor/internal/mqtt"
	"github.com/sweeney/fall-sensor/internal/status"
)

const clientID = "fall-sensor"

func main() {
	configPath := flag.String("config", "", "YAML boot configuration (empty for built-in defaults)")
	logLevel := flag.String("log-level", "", "Log level override: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "Log format override: console or json")
	broker := flag.String("broker", "", "MQTT broker for the debug log (overrides the config file)")
	printSample := flag.Bool("print-sample", false, "Print one accelerometer sample and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *broker != "" {
		cfg.Log.Broker = *broker
	}

	if err := run(cfg, *printSample); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, printSample bool) error {
	// Debug-log transport
	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = mqtt.NopPublisher{}
	var sink zapcore.WriteSyncer
	if cfg.Log.Broker != "" {
		rp := mqtt.NewRealPublisher(cfg.Log.Broker, cfg.Log.Prefix, clientID)
		publisher = rp
		sink = mqtt.NewLogSink(rp)
	}
	defer publisher.Close()

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, sink)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	b, err := board.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("init board: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("board close", zap.Error(err))
		}
	}()

	if err := b.Sensor.Init(cfg.SensorMode(), accel.ODR(cfg.Sensor.ODRHz), logger); err != nil {
		return err
	}

	if printSample {
		return printOneSample(b.Sensor, clock.New(), time.Second, os.Stdout)
	}

	clk := clock.New()
	tracker := status.NewTracker(clk, status.Config{
		PollMs:      cfg.Detector.PollInterval.Milliseconds(),
		HeartbeatMs: cfg.Detector.Heartbeat.Milliseconds(),
		LowEnter:    cfg.Detector.LowEnter,
		HighExit:    cfg.Detector.HighExit,
		Alarm:       string(cfg.AlarmStrategy()),
		SensorMode:  cfg.SensorMode().String(),
		ODRHz:       cfg.Sensor.ODRHz,
		Broker:      cfg.Log.Broker,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// The first frame is drawn explicitly; the loop only redraws on edges.
	b.Display.Show(display.StableFrame)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	snap := tracker.Snapshot()
	publishSystem(publisher, logger, mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		Confirm:    true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	})

	logger.Info("started",
		zap.Duration("poll", cfg.Detector.PollInterval),
		zap.Float64("low_enter_g", cfg.Detector.LowEnter),
		zap.Float64("high_exit_g", cfg.Detector.HighExit),
		zap.String("alarm", string(cfg.AlarmStrategy())),
		zap.Duration("heartbeat", cfg.Detector.Heartbeat),
		zap.String("broker", cfg.Log.Broker))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	m := newMonitor(cfg, b.Sensor, b.Display, b.Alarm, b.Fault, tracker, logger, clk.Now())
	return runLoop(m, publisher, publisher, tracker, logger, cfg.Detector.Heartbeat, clk, sigCh)
}

// sampler is the sensor as the loop sees it.
type sampler interface {
	Poll() (accel.Sample, bool, error)
}

// frameShower is the display as the loop sees it.
type frameShower interface {
	Show(display.Frame)
}

// monitor is the per-iteration state of the main loop.
type monitor struct {
	sensor  sampler
	display frameShower
	alarm   alarm.Alarm
	faults  func() error
	tracker *status.Tracker
	logger  *zap.Logger

	detector *logic.Detector
	backoff  logic.Backoff
	interval time.Duration

	failures int
	faulted  bool
}

func newMonitor(cfg config.Config, sensor sampler, disp frameShower, a alarm.Alarm, faults func() error,
	tracker *status.Tracker, logger *zap.Logger, start time.Time) *monitor {
	return &monitor{
		sensor:   sensor,
		display:  disp,
		alarm:    a,
		faults:   faults,
		tracker:  tracker,
		logger:   logger,
		detector: logic.NewDetector(cfg.Thresholds(), start),
		backoff:  cfg.Backoff(),
		interval: cfg.Detector.PollInterval,
	}
}

// outputsFor maps a classification to what the matrix and speaker must do.
func outputsFor(s logic.State) (display.Frame, bool) {
	if s == logic.StateFalling {
		return display.FallingFrame, true
	}
	return display.StableFrame, false
}

// step runs one iteration: sample, classify, and act on an edge. It returns
// the delay before the next iteration. A returned error is fatal.
func (m *monitor) step(now time.Time) (time.Duration, error) {
	if err := m.faults(); err != nil {
		return 0, fmt.Errorf("peripheral fault: %w", err)
	}

	sample, ok, err := m.sensor.Poll()
	if err != nil {
		return m.busFailure(err), nil
	}
	if m.failures > 0 {
		m.recovered()
	}
	if !ok {
		return m.interval, nil
	}

	mag := sample.Magnitude()
	m.logger.Debug("sample",
		zap.Float64("x", sample.X), zap.Float64("y", sample.Y), zap.Float64("z", sample.Z),
		zap.Float64("magnitude", mag))

	if ev := m.detector.Process(logic.Input{Magnitude: mag, Time: now}); ev != nil {
		if err := m.apply(ev); err != nil {
			return 0, err
		}
	}
	m.tracker.Update(m.detector.State(), mag, m.detector.EventCountsSnapshot())
	return m.interval, nil
}

// apply issues the single display update and alarm change for an edge.
func (m *monitor) apply(ev *logic.Event) error {
	frame, armed := outputsFor(ev.To)
	m.display.Show(frame)
	if err := m.alarm.SetArmed(armed); err != nil {
		return fmt.Errorf("set alarm armed=%v: %w", armed, err)
	}
	m.tracker.SetAlarmArmed(armed)

	m.logger.Info("fall state changed",
		zap.String("event", string(ev.Type)),
		zap.Stringer("from", ev.From),
		zap.Stringer("to", ev.To),
		zap.Float64("magnitude", ev.Magnitude))
	return nil
}

func (m *monitor) busFailure(err error) time.Duration {
	m.failures++
	delay := m.backoff.Delay(m.failures)

	var busErr *accel.BusError
	m.logger.Warn("sensor read failed",
		zap.Error(err),
		zap.Bool("bus", errors.As(err, &busErr)),
		zap.Int("failures", m.failures),
		zap.Duration("retry_in", delay))

	if m.backoff.Exhausted(m.failures) && !m.faulted {
		m.faulted = true
		m.display.Show(display.FaultFrame)
		m.logger.Error("sensor unavailable, showing fault pattern",
			zap.Int("failures", m.failures), zap.Stringer("state", m.detector.State()))
	}
	m.tracker.SetHealth(m.failures, m.faulted)
	return delay
}

func (m *monitor) recovered() {
	m.logger.Info("sensor recovered", zap.Int("failures", m.failures))
	if m.faulted {
		frame, _ := outputsFor(m.detector.State())
		m.display.Show(frame)
	}
	m.failures = 0
	m.faulted = false
	m.tracker.SetHealth(0, false)
}

func runLoop(m *monitor, publisher mqtt.Publisher, sinkStatus mqtt.ConnectionStatus, tracker *status.Tracker,
	logger *zap.Logger, heartbeat time.Duration, clk clock.Clock, sig <-chan os.Signal) error {
	timer := clk.Timer(0)
	defer timer.Stop()

	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", zap.Stringer("signal", s))
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			publishLifecycle(publisher, sinkStatus, tracker, logger, "SHUTDOWN", signalName)
			return nil

		case <-timer.C:
			t := clk.Now()
			delay, err := m.step(t)
			if err != nil {
				logger.Error("fatal error", zap.Error(err))
				publishLifecycle(publisher, sinkStatus, tracker, logger, "SHUTDOWN", "FAULT")
				return err
			}

			if hb := m.detector.CheckHeartbeat(t, heartbeat); hb != nil {
				tracker.SetSinkConnected(sinkStatus.IsConnected())
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				logger.Info("heartbeat", zap.Object("status", tracker.Snapshot()))
				publishLifecycle(publisher, sinkStatus, tracker, logger, "HEARTBEAT", "")
			}

			timer.Reset(delay)
		}
	}
}

// publishLifecycle sends a lifecycle record carrying a fresh status snapshot.
// Only SHUTDOWN waits for the broker; a heartbeat must not stall polling.
func publishLifecycle(publisher mqtt.Publisher, sinkStatus mqtt.ConnectionStatus, tracker *status.Tracker,
	logger *zap.Logger, event, reason string) {
	tracker.SetSinkConnected(sinkStatus.IsConnected())
	snap := tracker.Snapshot()
	publishSystem(publisher, logger, mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		Confirm:    event == "SHUTDOWN",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
}

func publishSystem(publisher mqtt.Publisher, logger *zap.Logger, ev mqtt.SystemEvent) {
	if err := publisher.PublishSystem(ev); err != nil {
		logger.Warn("system event not published", zap.String("event", ev.Event), zap.Error(err))
	}
}

// printOneSample waits up to timeout for a sample and prints it.
func printOneSample(s sampler, clk clock.Clock, timeout time.Duration, w io.Writer) error {
	deadline := clk.Now().Add(timeout)
	for {
		sample, ok, err := s.Poll()
		if err != nil {
			return fmt.Errorf("read accelerometer: %w", err)
		}
		if ok {
			fmt.Fprintf(w, "x=%.3fg y=%.3fg z=%.3fg |a|=%.3fg\n",
				sample.X, sample.Y, sample.Z, sample.Magnitude())
			return nil
		}
		if !clk.Now().Before(deadline) {
			return fmt.Errorf("no sample within %v", timeout)
		}
		clk.Sleep(5 * time.Millisecond)
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
