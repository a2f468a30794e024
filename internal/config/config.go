package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// MaxConfigFileBytes caps the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// RangeConfig is a closed [min, max] interval. A zero range means unsupported.
type RangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// LensConfig describes the optics in front of a device.
type LensConfig struct {
	Name          string  `yaml:"name"`            // e.g., "wide"
	FocalLengthMm float64 `yaml:"focal_length_mm"` // actual (not equivalent) focal length
}

// SensorConfig is optional: physical sensor size in mm.
type SensorConfig struct {
	WidthMm  float64 `yaml:"width_mm"`
	HeightMm float64 `yaml:"height_mm"`
}

// DeviceConfig describes one camera of the simulated rig.
type DeviceConfig struct {
	ID          string  `yaml:"id"`
	Position    string  `yaml:"position"`    // back | front
	WidthPx     int     `yaml:"width_px"`    // photo width, default 4032
	HeightPx    int     `yaml:"height_px"`   // photo height, default 3024
	Orientation string  `yaml:"orientation"` // up, down, left, right, *_mirrored
	InitialISO  float64 `yaml:"initial_iso"`

	FocusPointOfInterest    bool        `yaml:"focus_point_of_interest"`
	AutoFocus               bool        `yaml:"auto_focus"`
	ExposurePointOfInterest bool        `yaml:"exposure_point_of_interest"`
	AutoExpose              bool        `yaml:"auto_expose"`
	ExposureBias            RangeConfig `yaml:"exposure_bias"`
	ISO                     RangeConfig `yaml:"iso"`
	MaxZoom                 float64     `yaml:"max_zoom"`
	Torch                   bool        `yaml:"torch"`

	Lens   LensConfig    `yaml:"lens"`
	Sensor *SensorConfig `yaml:"sensor,omitempty"` // optional
}

// CameraConfig selects the camera backend and describes its devices.
type CameraConfig struct {
	Backend      string         `yaml:"backend"`        // only "sim" for now
	PhotoDelayMs int            `yaml:"photo_delay_ms"` // simulated shutter latency
	Devices      []DeviceConfig `yaml:"devices"`
}

// TorchConfig wires a GPIO LED as the torch of one device. Pin 0 = not used.
type TorchConfig struct {
	Pin       int    `yaml:"pin"`        // BCM numbering
	ActiveLow bool   `yaml:"active_low"` // LED driven through a low-side switch
	Position  string `yaml:"position"`   // device the LED belongs to, default back
}

// CaptureConfig holds capture pipeline settings.
type CaptureConfig struct {
	TimeoutMs   int    `yaml:"timeout_ms"`
	Ratio       string `yaml:"ratio"` // 4:3 | 1:1 | 16:9
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// OverlayConfig holds grid and corner guide settings.
type OverlayConfig struct {
	CornerLength float64 `yaml:"corner_length"`
	AnimationMs  int     `yaml:"animation_ms"`
}

// ZoomConfig caps the zoom factor below the device maximum.
type ZoomConfig struct {
	Max float64 `yaml:"max"`
}

// DefaultsConfig contains generic runtime parameters.
type DefaultsConfig struct {
	DebugLevel int    `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool   `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	WebPort    int    `yaml:"web_port"`    // port used by -web without a value
	Position   string `yaml:"position"`    // camera used at startup
}

// PrefsConfig locates the preference store.
type PrefsConfig struct {
	Path string `yaml:"path"`
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Torch    TorchConfig    `yaml:"torch"`
	Capture  CaptureConfig  `yaml:"capture"`
	Overlay  OverlayConfig  `yaml:"overlay"`
	Zoom     ZoomConfig     `yaml:"zoom"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Prefs    PrefsConfig    `yaml:"prefs"`
}

// EnvOverrides are the settings that may be overridden from the environment.
// Unset variables leave the file value alone.
type EnvOverrides struct {
	DebugLevel       *int     `env:"CAMCTL_DEBUG_LEVEL"`
	MockGPIO         *bool    `env:"CAMCTL_MOCK_GPIO"`
	WebPort          *int     `env:"CAMCTL_WEB_PORT"`
	Position         string   `env:"CAMCTL_POSITION"`
	CaptureTimeoutMs *int     `env:"CAMCTL_CAPTURE_TIMEOUT_MS"`
	Ratio            string   `env:"CAMCTL_RATIO"`
	ZoomMax          *float64 `env:"CAMCTL_ZOOM_MAX"`
	TorchPin         *int     `env:"CAMCTL_TORCH_PIN"`
	PrefsPath        string   `env:"CAMCTL_PREFS_PATH"`
}

// ValidateConfigPath accepts only .yaml files inside a directory named
// "configs".
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q: extension must be .yaml", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("config path %q: %w", path, err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q: file must be in a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file, applies defaults, environment overrides and
// validation, and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.ApplyEnv(o); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes and validates YAML configuration without touching the
// environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overlays environment overrides and re-validates.
func (c *Config) ApplyEnv(o EnvOverrides) error {
	if o.DebugLevel != nil {
		c.Defaults.DebugLevel = *o.DebugLevel
	}
	if o.MockGPIO != nil {
		c.Defaults.MockGPIO = *o.MockGPIO
	}
	if o.WebPort != nil {
		c.Defaults.WebPort = *o.WebPort
	}
	if o.Position != "" {
		c.Defaults.Position = o.Position
	}
	if o.CaptureTimeoutMs != nil {
		c.Capture.TimeoutMs = *o.CaptureTimeoutMs
	}
	if o.Ratio != "" {
		c.Capture.Ratio = o.Ratio
	}
	if o.ZoomMax != nil {
		c.Zoom.Max = *o.ZoomMax
	}
	if o.TorchPin != nil {
		c.Torch.Pin = *o.TorchPin
	}
	if o.PrefsPath != "" {
		c.Prefs.Path = o.PrefsPath
	}
	return c.normalize()
}

func (c *Config) normalize() error {
	if c.Camera.Backend == "" {
		c.Camera.Backend = "sim"
	}
	if c.Camera.Backend != "sim" {
		return fmt.Errorf("unsupported camera backend: %s", c.Camera.Backend)
	}
	if c.Camera.PhotoDelayMs < 0 {
		return fmt.Errorf("camera.photo_delay_ms must be >= 0, got %d", c.Camera.PhotoDelayMs)
	}
	if len(c.Camera.Devices) == 0 {
		return errors.New("camera.devices: at least one device is required")
	}

	seen := make(map[camera.Position]bool)
	for i := range c.Camera.Devices {
		d := &c.Camera.Devices[i]
		pos, err := camera.ParsePosition(d.Position)
		if err != nil {
			return fmt.Errorf("camera.devices[%d]: %w", i, err)
		}
		if seen[pos] {
			return fmt.Errorf("camera.devices[%d]: duplicate %s camera", i, pos)
		}
		seen[pos] = true
		if d.ID == "" {
			d.ID = pos.String() + "-wide"
		}
		if d.WidthPx <= 0 {
			d.WidthPx = 4032
		}
		if d.HeightPx <= 0 {
			d.HeightPx = 3024
		}
		if _, err := parseOrientation(d.Orientation); err != nil {
			return fmt.Errorf("camera.devices[%d]: %w", i, err)
		}
		if d.ExposureBias.Min > d.ExposureBias.Max {
			return fmt.Errorf("camera.devices[%d].exposure_bias: min %.2f > max %.2f", i, d.ExposureBias.Min, d.ExposureBias.Max)
		}
		if d.ISO.Min > d.ISO.Max {
			return fmt.Errorf("camera.devices[%d].iso: min %.0f > max %.0f", i, d.ISO.Min, d.ISO.Max)
		}
		if d.MaxZoom != 0 && d.MaxZoom < 1 {
			return fmt.Errorf("camera.devices[%d].max_zoom must be >= 1, got %.2f", i, d.MaxZoom)
		}
		if d.Lens.FocalLengthMm < 0 {
			return fmt.Errorf("camera.devices[%d].lens.focal_length_mm must be > 0", i)
		}
	}

	if c.Torch.Pin < 0 || c.Torch.Pin > 27 {
		return fmt.Errorf("torch.pin must be a BCM pin 1-27 (0 = none), got %d", c.Torch.Pin)
	}
	if c.Torch.Position == "" {
		c.Torch.Position = "back"
	}
	if _, err := camera.ParsePosition(c.Torch.Position); err != nil {
		return fmt.Errorf("torch.position: %w", err)
	}

	if c.Capture.TimeoutMs <= 0 {
		c.Capture.TimeoutMs = 10000 // 10s for the hardware callback
	}
	if c.Capture.Ratio == "" {
		c.Capture.Ratio = "4:3"
	}
	if _, err := geometry.ParseRatio(c.Capture.Ratio); err != nil {
		return fmt.Errorf("capture.ratio: %w", err)
	}
	if c.Capture.JPEGQuality == 0 {
		c.Capture.JPEGQuality = 92
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture.jpeg_quality must be between 1 and 100, got %d", c.Capture.JPEGQuality)
	}

	if c.Overlay.CornerLength <= 0 {
		c.Overlay.CornerLength = geometry.DefaultCornerLength
	}
	if c.Overlay.AnimationMs <= 0 {
		c.Overlay.AnimationMs = 250
	}

	if c.Zoom.Max == 0 {
		c.Zoom.Max = 100
	}
	if c.Zoom.Max < 1 {
		return fmt.Errorf("zoom.max must be >= 1, got %.2f", c.Zoom.Max)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Defaults.WebPort == 0 {
		c.Defaults.WebPort = 8080
	}
	if c.Defaults.WebPort < 1 || c.Defaults.WebPort > 65535 {
		return fmt.Errorf("defaults.web_port must be 1-65535, got %d", c.Defaults.WebPort)
	}
	if c.Defaults.Position == "" {
		c.Defaults.Position = "back"
	}
	if _, err := camera.ParsePosition(c.Defaults.Position); err != nil {
		return fmt.Errorf("defaults.position: %w", err)
	}

	if c.Prefs.Path == "" {
		c.Prefs.Path = "camctl-prefs.yaml"
	}
	return nil
}

var orientations = map[string]camera.Orientation{
	"":               camera.OrientationUp,
	"up":             camera.OrientationUp,
	"down":           camera.OrientationDown,
	"left":           camera.OrientationLeft,
	"right":          camera.OrientationRight,
	"up_mirrored":    camera.OrientationUpMirrored,
	"down_mirrored":  camera.OrientationDownMirrored,
	"left_mirrored":  camera.OrientationLeftMirrored,
	"right_mirrored": camera.OrientationRightMirrored,
}

func parseOrientation(s string) (camera.Orientation, error) {
	o, ok := orientations[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return camera.OrientationUp, fmt.Errorf("unknown orientation %q", s)
	}
	return o, nil
}

// CaptureTimeout returns how long a capture waits for the hardware.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Capture.TimeoutMs) * time.Millisecond
}

// PhotoDelay returns the simulated shutter latency.
func (c *Config) PhotoDelay() time.Duration {
	return time.Duration(c.Camera.PhotoDelayMs) * time.Millisecond
}

// OverlayTransition returns the overlay animation duration.
func (c *Config) OverlayTransition() time.Duration {
	return time.Duration(c.Overlay.AnimationMs) * time.Millisecond
}

// Ratio returns the default capture ratio. Load has validated it.
func (c *Config) Ratio() geometry.Ratio {
	r, _ := geometry.ParseRatio(c.Capture.Ratio)
	return r
}

// StartPosition returns the camera used at startup. Load has validated it.
func (c *Config) StartPosition() camera.Position {
	p, _ := camera.ParsePosition(c.Defaults.Position)
	return p
}

// TorchPosition returns the device the GPIO torch belongs to.
func (c *Config) TorchPosition() camera.Position {
	p, _ := camera.ParsePosition(c.Torch.Position)
	return p
}

// SimSpecs converts the device list for the simulated backend.
func (c *Config) SimSpecs() []camera.SimDeviceSpec {
	specs := make([]camera.SimDeviceSpec, 0, len(c.Camera.Devices))
	for _, d := range c.Camera.Devices {
		pos, _ := camera.ParsePosition(d.Position)
		orient, _ := parseOrientation(d.Orientation)
		lens := camera.Lens{FocalLengthMm: d.Lens.FocalLengthMm}
		if d.Sensor != nil {
			lens.SensorWidthMm = d.Sensor.WidthMm
			lens.SensorHeightMm = d.Sensor.HeightMm
		}
		specs = append(specs, camera.SimDeviceSpec{
			ID:          d.ID,
			Position:    pos,
			Width:       d.WidthPx,
			Height:      d.HeightPx,
			Orientation: orient,
			InitialISO:  d.InitialISO,
			Capabilities: camera.Capabilities{
				FocusPointOfInterest:    d.FocusPointOfInterest,
				AutoFocus:               d.AutoFocus,
				ExposurePointOfInterest: d.ExposurePointOfInterest,
				AutoExpose:              d.AutoExpose,
				ExposureBias:            camera.Range{Min: d.ExposureBias.Min, Max: d.ExposureBias.Max},
				ISO:                     camera.Range{Min: d.ISO.Min, Max: d.ISO.Max},
				MaxZoom:                 d.MaxZoom,
				Torch:                   d.Torch,
				Lens:                    lens,
			},
		})
	}
	return specs
}
