// Command bbctrld is the bbctrl motion coordinator's process
// entrypoint: it parses the service configuration, constructs the
// State Store, Firmware Link, Planner Adapter, Motion Coordinator and
// Preplanner in dependency order, and drives them with a single
// cooperative event loop (spec SPEC_FULL.md §4.G).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/buildbotics/bbctrl-motion/internal/config"
	"github.com/buildbotics/bbctrl-motion/internal/coordinator"
	"github.com/buildbotics/bbctrl-motion/internal/firmwarelink"
	"github.com/buildbotics/bbctrl-motion/internal/machineconfig"
	"github.com/buildbotics/bbctrl-motion/internal/planner"
	"github.com/buildbotics/bbctrl-motion/internal/preplan"
	"github.com/buildbotics/bbctrl-motion/internal/state"
)

// NewEngine constructs the opaque G-code trajectory planner engine this
// process drives. Trajectory computation and firmware-level step
// generation are explicitly out of this module's scope (spec.md §1
// Non-goals): a production build binds this to a real engine (a CGo
// wrapper around the native planner, or an equivalent build-tagged
// driver). Left nil, run() fails fast with a clear diagnostic instead
// of silently no-op'ing the whole coordinator.
var NewEngine planner.EngineFactory

const reconnectBackoff = time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		device     string
		baud       int
		i2cBus     string
	)

	cmd := &cobra.Command{
		Use:   "bbctrld",
		Short: "Motion control coordinator for bbctrl-compatible AVR firmware",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("device") {
				cfg.Serial.Device = device
			}
			if cmd.Flags().Changed("baud") {
				cfg.Serial.Baud = baud
			}
			if cmd.Flags().Changed("i2c-bus") {
				cfg.I2C.Bus = i2cBus
			}
			return run(context.Background(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the service configuration file")
	cmd.Flags().StringVar(&device, "device", "", "serial device the AVR firmware is attached to")
	cmd.Flags().IntVar(&baud, "baud", 0, "serial baud rate")
	cmd.Flags().StringVar(&i2cBus, "i2c-bus", "", "I2C bus device node for the side-band channel")

	return cmd
}

// server bundles the composition root's components so the control loop
// and the collaborators spec.md §4.G says to expose (HTTP/WebSocket UI,
// LCD, input devices — not implemented here, out of scope) share one
// handle.
type server struct {
	log   *logrus.Entry
	cfg   *config.Config
	store *state.Store
	link  *firmwarelink.Link
	coord *coordinator.Coordinator
	pre   *preplan.Preplanner
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	if NewEngine == nil {
		return fmt.Errorf("bbctrld: no planner engine bound; build with a trajectory engine driver wired to NewEngine")
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("init periph host drivers: %w", err)
	}

	s := &server{
		log: log,
		cfg: cfg,
	}
	s.store = state.New(log, cfg.StateDebounce)

	adapter := planner.New(log, s.store, NewEngine())
	s.link = firmwarelink.New(log, adapter)

	side := firmwarelink.NewSideBand(log, cfg.I2C.Address, func() (firmwarelink.I2CBus, error) {
		return i2creg.Open(cfg.I2C.Bus)
	})

	s.coord = coordinator.New(log, s.store, adapter, s.link, side)

	s.link.StopHook = func() {
		if err := s.coord.Stop(); err != nil {
			log.WithError(err).Warn("stop hook failed during connect")
		}
	}
	s.link.OnHandshake = func(raw map[string]any) error {
		s.store.MachineCmdsAndVars(decodeVariables(raw))
		return nil
	}
	s.link.OnTelemetry = func(delta map[string]any) {
		values := make(map[string]state.Value, len(delta))
		for k, v := range delta {
			values[k] = state.FromAny(v)
		}
		adapter.OnStateUpdate(values)
		s.coord.OnStateUpdate(values)
		s.store.Update(values)
	}
	s.link.OnReboot = func() {
		log.Warn("firmware reboot detected, reconnecting")
		if err := s.link.Connect(); err != nil {
			log.WithError(err).Error("reconnect after reboot failed")
		}
	}
	s.link.OnHandshakeFailed = func() {
		log.Warn("handshake failed")
	}

	mc := machineconfig.New(log, s.store.Config, machineconfig.DefaultTemplate(), cfg.MachineConfigPath)
	s.store.OnConfigReload = mc.Reload

	s.pre = preplan.New(log, s.store, NewEngine, preplan.Config{
		UploadDir:      cfg.Dirs.Upload,
		PlansDir:       cfg.Dirs.Plans,
		MetaDir:        cfg.Dirs.Meta,
		Workers:        cfg.Preplanner.Workers,
		KeepPerFile:    cfg.Preplanner.KeepPerFile,
		MaxPreplanTime: cfg.Preplanner.MaxPreplanTime,
		MaxLoopTime:    cfg.Preplanner.MaxLoopTime,
	})

	return s.runLoop(ctx)
}

// decodeVariables converts a handshake payload's `variables` field
// (firmware-code -> {"index": "<chars>", ...}) into the State Store's
// VariableSpec map (State.py's machine_cmds_and_vars).
func decodeVariables(raw map[string]any) map[string]state.VariableSpec {
	vars, _ := raw["variables"].(map[string]any)
	specs := make(map[string]state.VariableSpec, len(vars))
	for name, v := range vars {
		spec, _ := v.(map[string]any)
		idx, _ := spec["index"].(string)
		specs[name] = state.VariableSpec{Index: idx}
	}
	return specs
}

// runLoop is the single cooperative event loop that owns the Firmware
// Link (spec §5 "shared resources", §4.G): it polls the serial port for
// readability/writability on a fixed tick, since go.bug.st/serial has
// no portable select-style readiness notification, and tracks its own
// reconnect deadline rather than arming Link.ScheduleReconnect's
// background timer, so every Link call happens on this one goroutine.
func (s *server) runLoop(ctx context.Context) error {
	const pollInterval = 5 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var reconnectAt time.Time
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			s.link.Close()
			return ctx.Err()

		case <-ticker.C:
			if !s.link.IsOpen() {
				if time.Now().Before(reconnectAt) {
					continue
				}
				if err := s.link.Open(s.cfg.Serial.Device, s.cfg.Serial.Baud); err != nil {
					s.log.WithError(err).Debug("serial reopen failed")
					reconnectAt = time.Now().Add(reconnectBackoff)
					continue
				}
				if err := s.link.Connect(); err != nil {
					s.log.WithError(err).Warn("connect after reopen failed")
					reconnectAt = time.Now().Add(reconnectBackoff)
				}
				continue
			}

			n, err := s.link.Read(buf)
			if err != nil {
				s.log.WithError(err).Warn("serial read failed, closing for reconnect")
				s.link.Close()
				reconnectAt = time.Now().Add(reconnectBackoff)
				continue
			}
			if n > 0 {
				s.link.ReadAvailable(buf[:n])
			}

			if s.link.WriteEnabled() {
				if err := s.link.WriteReady(); err != nil {
					s.log.WithError(err).Warn("serial write failed, closing for reconnect")
					s.link.Close()
					reconnectAt = time.Now().Add(reconnectBackoff)
				}
			}
		}
	}
}
