package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/camctl/internal/config"
	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/hw/gpio"
	"github.com/cjeanneret/camctl/internal/logic/capture"
	"github.com/cjeanneret/camctl/internal/logic/events"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
	"github.com/cjeanneret/camctl/internal/logic/mainloop"
	"github.com/cjeanneret/camctl/internal/prefs"
	"github.com/cjeanneret/camctl/internal/telemetry"
	"github.com/cjeanneret/camctl/internal/viewmodel"
	"github.com/cjeanneret/camctl/internal/web"
)

// cliOverrides are the config values that may be set from the command line.
// Empty strings mean "use config default".
type cliOverrides struct {
	Position string
	Ratio    string
	Prefs    string
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for the configured port, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	position := flag.String("position", "", "override startup camera (back|front)")
	ratio := flag.String("ratio", "", "override capture ratio (4:3|1:1|16:9)")
	prefsPath := flag.String("prefs", "", "override preference file path")
	outPath := flag.String("out", "capture.jpg", "output file for a one-shot capture")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	overrides := cliOverrides{Position: *position, Ratio: *ratio, Prefs: *prefsPath}
	if err := validateCLIOverrides(overrides); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides)
	if cfg.Defaults.WebPort > 0 {
		webPort.defaultPort = cfg.Defaults.WebPort
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	shutdownTracing, err := telemetry.Setup(ctx)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("flushing traces failed: %v", err)
		}
	}()

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize cameras
	debug.Step(2, "Initializing cameras")
	provider, err := newProviderFromConfig(gpioDriver, cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	debug.Value("Camera backend", cfg.Camera.Backend)
	debug.PrintStruct("Capture config", cfg.Capture)

	store, err := prefs.Open(cfg.Prefs.Path)
	if err != nil {
		log.Fatalf("open preferences failed: %v", err)
	}

	debug.Step(3, "Starting controller")
	hub := events.NewHub()
	loop := mainloop.New(64)
	cam := viewmodel.New(viewmodel.Options{
		Provider:       provider,
		Hub:            hub,
		UI:             loop,
		ZoomCap:        cfg.Zoom.Max,
		CaptureTimeout: cfg.CaptureTimeout(),
		Ratio:          cfg.Ratio(),
		CornerLength:   cfg.Overlay.CornerLength,
		Transition:     cfg.OverlayTransition(),
	})
	defer func() {
		if err := cam.Close(); err != nil {
			log.Printf("closing camera failed: %v", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		debug.SetOutput(io.MultiWriter(os.Stdout, events.Writer(hub)))

		srv := web.NewServer(webAddr, cam, hub, cfg.Capture.JPEGQuality)
		g.Go(func() error { return srv.Run(gctx) })
		g.Go(func() error {
			// A failed start is reported on the event stream; the panel can retry.
			if err := cam.StartSession(gctx, cfg.StartPosition()); err != nil {
				debug.Error(fmt.Errorf("start session: %w", err))
				return nil
			}
			if markOnboarded(store) {
				debug.Info(onboardingHint)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	{
		// Run capture once with current config (already has CLI overrides applied)
		err := runOnce(gctx, cam, cfg.StartPosition(), *outPath, cfg.Capture.JPEGQuality)
		if err == nil && markOnboarded(store) {
			debug.Info(onboardingHint)
		}
		cancel()
		if werr := g.Wait(); werr != nil && err == nil {
			err = werr
		}
		if err != nil {
			log.Fatalf("capture failed: %v", err)
		}
	}
}

// runOnce starts the session, captures a single photo and writes it to out.
func runOnce(ctx context.Context, cam *viewmodel.Camera, pos camera.Position, out string, quality int) error {
	debug.Section("One-shot capture")
	if err := cam.StartSession(ctx, pos); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer func() {
		if err := cam.StopSession(context.Background()); err != nil {
			debug.Error(fmt.Errorf("stop session: %w", err))
		}
	}()

	ch, err := cam.Capture(ctx)
	if err != nil {
		return err
	}
	res := <-ch
	if res.None() {
		if res.Err != nil {
			return res.Err
		}
		return errors.New("capture produced no image")
	}
	if err := writeCapture(out, res, quality); err != nil {
		return err
	}
	debug.Info("Saved %s (%s, cropped=%v)", out, res.RequestID, res.Cropped)
	return nil
}

// writeCapture encodes res as JPEG into path.
func writeCapture(path string, res capture.Result, quality int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := capture.EncodeJPEG(f, res.Image, quality); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

// onboardingHint is shown once, after the first successful session start.
const onboardingHint = "First run: tap to focus, drag vertically for exposure, pinch to zoom"

// markOnboarded records the first successful session start. It reports
// whether this run was the first one.
func markOnboarded(store *prefs.Store) bool {
	if store.Bool(prefs.OnboardingCompleted) {
		return false
	}
	if err := store.SetBool(prefs.OnboardingCompleted, true); err != nil {
		debug.Error(fmt.Errorf("save preferences: %w", err))
	}
	return true
}

// validateCLIOverrides checks that non-empty CLI overrides are valid.
// Empty values are ignored (they mean "use config default").
func validateCLIOverrides(o cliOverrides) error {
	if o.Position != "" {
		if _, err := camera.ParsePosition(o.Position); err != nil {
			return fmt.Errorf("position: %w", err)
		}
	}
	if o.Ratio != "" {
		if _, err := geometry.ParseRatio(o.Ratio); err != nil {
			return fmt.Errorf("ratio: %w", err)
		}
	}
	if o.Prefs != "" && filepath.Ext(o.Prefs) != ".yaml" {
		return fmt.Errorf("prefs must be a .yaml file, got %q", o.Prefs)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-empty override values
// are applied; they must have passed validateCLIOverrides.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.Position != "" {
		pos, _ := camera.ParsePosition(o.Position)
		cfg.Defaults.Position = pos.String()
	}
	if o.Ratio != "" {
		r, _ := geometry.ParseRatio(o.Ratio)
		cfg.Capture.Ratio = r.String()
	}
	if o.Prefs != "" {
		cfg.Prefs.Path = o.Prefs
	}
}

// webPortFlag implements flag.Value for -web: unset = disabled, -web= → the
// configured port, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	enabled     bool
	defaultPort int
}

func (w *webPortFlag) String() string {
	if p := w.port(); p > 0 {
		return strconv.Itoa(p)
	}
	return "0"
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.enabled = true
		w.val = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.enabled = true
	w.val = v
	return nil
}

func (w *webPortFlag) port() int {
	if !w.enabled {
		return 0
	}
	if w.val > 0 {
		return w.val
	}
	return w.defaultPort
}

// newProviderFromConfig selects a camera backend based on configuration and
// wires the GPIO torch when one is configured.
func newProviderFromConfig(g gpio.Driver, cfg *config.Config) (camera.Provider, error) {
	switch cfg.Camera.Backend {
	case "sim":
		sim := camera.NewSimProvider(cfg.PhotoDelay(), cfg.SimSpecs()...)
		if cfg.Torch.Pin > 0 {
			dev := sim.SimDevice(cfg.TorchPosition())
			if dev == nil {
				return nil, fmt.Errorf("torch: no %s camera configured", cfg.TorchPosition())
			}
			dev.AttachTorch(camera.NewGPIOTorch(g, cfg.Torch.Pin, cfg.Torch.ActiveLow))
			debug.Value("Torch pin", cfg.Torch.Pin)
		}
		return sim, nil
	default:
		return nil, fmt.Errorf("unsupported camera backend: %s", cfg.Camera.Backend)
	}
}
