package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	osignal "os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/FeuGo/internal/config"
	"github.com/cjeanneret/FeuGo/internal/controller"
	"github.com/cjeanneret/FeuGo/internal/debug"
	"github.com/cjeanneret/FeuGo/internal/hw/gpio"
	"github.com/cjeanneret/FeuGo/internal/hw/lamps"
	"github.com/cjeanneret/FeuGo/internal/hw/serialport"
	"github.com/cjeanneret/FeuGo/internal/hw/stepper"
	"github.com/cjeanneret/FeuGo/internal/logic/motion"
	sig "github.com/cjeanneret/FeuGo/internal/logic/signal"
	"github.com/cjeanneret/FeuGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web status page on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	device := flag.String("device", "", "override serial device (empty = config value; config empty = stdin/stdout)")
	flag.Parse()

	ctx, cancel := osignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Cycle length (ms)", cfg.CycleMs())

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Open the supervisor link
	dev := cfg.Serial.Device
	if *device != "" {
		dev = *device
	}
	var port serialport.Port
	if dev == "" {
		debug.Info("no serial device configured, using stdin/stdout")
		port = serialport.NewConsole()
	} else {
		port, err = serialport.Open(serialport.Config{
			Device:      dev,
			Baud:        cfg.Serial.Baud,
			ReadTimeout: cfg.ReadTimeout(),
		})
		if err != nil {
			log.Fatalf("open serial failed: %v", err)
		}
		debug.Value("Serial device", dev)
		debug.Value("Baud", cfg.Serial.Baud)
	}
	defer func() {
		if err := port.Close(); err != nil {
			log.Printf("closing serial port failed: %v", err)
		}
	}()

	// Initialize turret stepper
	motor := stepper.NewStepper(gpioDriver, stepper.Config{
		StepPin:      cfg.Turret.StepPin,
		DirPin:       cfg.Turret.DirPin,
		EnablePin:    cfg.Turret.EnablePin,
		StepsPerRev:  cfg.Turret.StepsPerRev,
		StepInterval: cfg.StepInterval(),
		PulseWidth:   cfg.PulseWidth(),
	})
	debug.Value("Quarter turn steps", cfg.Turret.QuarterTurnSteps)

	// Initialize lamp matrix
	var signalPins [sig.Count]int
	copy(signalPins[:], cfg.Lamps.SignalPins)
	matrix := lamps.NewMatrix(gpioDriver, lamps.Config{
		SignalPins: signalPins,
		RedPin:     cfg.Lamps.RedPin,
		YellowPin:  cfg.Lamps.YellowPin,
		GreenPin:   cfg.Lamps.GreenPin,
		RowDwell:   cfg.RowDwell(),
	})

	// Assemble the control loop: scheduler and turret answer the
	// supervisor directly over the serial port.
	millis := controller.NewMillis(time.Now())
	say := func(format string, args ...interface{}) {
		fmt.Fprintf(port, format+"\r\n", args...)
	}

	sched := sig.New(sig.Timing{
		SteadyMs:        uint32(cfg.Signals.SteadyMs),
		BlinkMs:         uint32(cfg.Signals.BlinkMs),
		YellowMs:        uint32(cfg.Signals.YellowMs),
		BlinkIntervalMs: uint32(cfg.Signals.BlinkIntervalMs),
		LeadMs:          uint32(cfg.Signals.LeadMs),
	}, millis(), say)
	turret := motion.NewController(motor, cfg.Turret.QuarterTurnSteps, say)
	loop := controller.New(port, sched, turret, matrix, millis)

	if p := webPort.port(); p > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		srv, err := web.NewServer(fmt.Sprintf(":%d", p), broadcaster, loop)
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		go func() {
			if err := srv.Run(ctx); err != nil {
				debug.Error(err)
			}
		}()
	}

	// Boot banner; the supervisor reads and prints it after connecting.
	say("FeuGo ready")

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("control loop: %v", err)
	}

	// Lamps dark on the way out.
	if err := matrix.Blank(); err != nil {
		log.Printf("blanking lamp matrix failed: %v", err)
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or
// -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
