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

	"github.com/cjeanneret/scancam/internal/config"
	"github.com/cjeanneret/scancam/internal/debug"
	"github.com/cjeanneret/scancam/internal/hw/camera"
	"github.com/cjeanneret/scancam/internal/hw/gpio"
	"github.com/cjeanneret/scancam/internal/logic/capture"
	"github.com/cjeanneret/scancam/internal/web"
)

var version = "dev"

func main() {
	// CLI flags
	webPort := &webPortFlag{}
	flag.Var(webPort, "web", "listen port; -web= uses server.port from the config, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	once := flag.Bool("once", false, "take one high quality capture to server.output_path and exit")
	mock := flag.Bool("mock", false, "use the software camera and mock GPIO")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *mock {
		cfg.Camera.Type = config.CameraMock
		cfg.Defaults.MockGPIO = true
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", debug.Level())
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

	dev, err := newDeviceFromConfig(gpioDriver, cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)
	debug.Value("Camera device", dev.Name())

	hq, preview := profilesFromConfig(cfg)
	debug.Value("High quality", fmt.Sprintf("%s q%d warmup %v", hq.Resolution, hq.Quality, hq.Warmup))
	debug.Value("Quick preview", fmt.Sprintf("%s q%d warmup %v", preview.Resolution, preview.Quality, preview.Warmup))
	svc, err := capture.NewService(dev, capture.NewGate(cfg.GateTimeout()), hq, preview)
	if err != nil {
		log.Fatalf("init capture service failed: %v", err)
	}

	if *once {
		if err := runOnce(ctx, svc, cfg.Server.OutputPath); err != nil {
			log.Fatalf("capture failed: %v", err)
		}
		return
	}

	tracez, cleanup, err := web.InitTracing("scancam", version)
	if err != nil {
		log.Fatalf("init tracing failed: %v", err)
	}
	defer cleanup()

	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	handlers := web.NewHandlers(broadcaster, svc, cfg.Server.OutputPath)
	srv := web.NewServer(config.Addr(webPort.port(cfg.Server.Port)), handlers, tracez, cfg.ReadTimeout())
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("web server: %v", err)
	}
}

// runOnce takes a single high quality capture, the way a cron job or a shell
// script would use the tool.
func runOnce(ctx context.Context, svc *capture.Service, outputPath string) error {
	img, err := svc.HighQualityCapture(ctx, outputPath)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s (%s, %d bytes)\n", img.Path, img.Resolution, img.Len())
	return nil
}

// profilesFromConfig converts the YAML profiles to capture profiles.
func profilesFromConfig(cfg *config.Config) (hq, preview capture.Profile) {
	convert := func(p config.ProfileConfig) capture.Profile {
		return capture.Profile{
			Resolution: camera.Resolution{Width: p.Width, Height: p.Height},
			Warmup:     p.Warmup(),
			Quality:    p.Quality,
		}
	}
	return convert(cfg.Capture.HighQuality), convert(cfg.Capture.QuickPreview)
}

// newDeviceFromConfig selects a camera implementation based on configuration.
// A non-zero indicator pin wraps it with a busy LED.
func newDeviceFromConfig(g gpio.Driver, cfg *config.Config) (camera.Device, error) {
	var dev camera.Device
	switch cfg.Camera.Type {
	case config.CameraV4L2:
		dev = camera.NewV4L2Device(cfg.Camera.Device, cfg.FrameTimeout())
	case config.CameraMock:
		hq := cfg.Capture.HighQuality
		dev = &camera.MockDevice{Pattern: camera.GradientPattern(hq.Width, hq.Height)}
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}

	if cfg.Camera.IndicatorPin > 0 {
		if g == nil {
			return nil, errors.New("camera.indicator_pin set but no GPIO driver")
		}
		dev = camera.NewIndicatorDevice(dev, g, cfg.Camera.IndicatorPin)
	}
	return dev, nil
}

// webPortFlag implements flag.Value for -web: unset or -web= → config port, -web 8980 → 8980.
type webPortFlag struct {
	val int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
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
	w.val = v
	return nil
}

// port returns the flag value, or fallback when none was given.
func (w *webPortFlag) port(fallback int) int {
	if w.val == 0 {
		return fallback
	}
	return w.val
}
