package camera

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Position identifies a physical camera by where it faces.
type Position int

const (
	Back Position = iota
	Front
)

func (p Position) String() string {
	switch p {
	case Back:
		return "back"
	case Front:
		return "front"
	default:
		return fmt.Sprintf("position(%d)", int(p))
	}
}

// ParsePosition accepts "back" or "front" (case-insensitive).
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "back", "rear":
		return Back, nil
	case "front", "user":
		return Front, nil
	default:
		return Back, fmt.Errorf("unknown camera position %q", s)
	}
}

// Point is a coordinate; for focus and exposure it is normalized to [0,1]².
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FocusMode is the autofocus behaviour of a device.
type FocusMode int

const (
	FocusLocked FocusMode = iota
	AutoFocus
	ContinuousAutoFocus
)

// ExposureMode is the auto-exposure behaviour of a device.
type ExposureMode int

const (
	ExposureLocked ExposureMode = iota
	AutoExpose
	ContinuousAutoExposure
	ExposureCustom
)

// Range is a closed interval reported by a device.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Valid reports whether the range describes a usable interval.
func (r Range) Valid() bool {
	return r.Max > r.Min && !math.IsNaN(r.Min) && !math.IsNaN(r.Max)
}

// Clamp limits v to [Min, Max].
func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(v, r.Max))
}

// Lens describes the optics used for field-of-view reporting.
type Lens struct {
	FocalLengthMm  float64 `json:"focal_length_mm" yaml:"focal_length_mm"`
	SensorWidthMm  float64 `json:"sensor_width_mm" yaml:"sensor_width_mm"`
	SensorHeightMm float64 `json:"sensor_height_mm" yaml:"sensor_height_mm"`
}

// Capabilities is a read-only snapshot of what a device supports.
// Query it per operation; it changes whenever the active device does.
type Capabilities struct {
	FocusPointOfInterest    bool    `json:"focus_point_of_interest"`
	AutoFocus               bool    `json:"auto_focus"`
	ExposurePointOfInterest bool    `json:"exposure_point_of_interest"`
	AutoExpose              bool    `json:"auto_expose"`
	ExposureBias            Range   `json:"exposure_bias"`
	ISO                     Range   `json:"iso"`
	MaxZoom                 float64 `json:"max_zoom"`
	Torch                   bool    `json:"torch"`
	Lens                    Lens    `json:"lens"`
}

// Device is a physical camera. Every setter requires the configuration lock
// to be held by the caller (LockForConfiguration / UnlockForConfiguration).
type Device interface {
	ID() string
	Position() Position
	Capabilities() Capabilities

	LockForConfiguration() error
	UnlockForConfiguration()

	SetFocusMode(FocusMode)
	SetFocusPoint(Point)
	SetExposureMode(ExposureMode)
	SetExposurePoint(Point)

	ExposureBias() float64
	SetExposureBias(float64)
	ISO() float64
	SetISO(float64)
	ZoomFactor() float64
	SetZoomFactor(float64)

	TorchActive() bool
	SetTorch(on bool) error
}

// Input is an opened device attached (or attachable) to a session.
type Input interface {
	Device() Device
}

// Orientation is the EXIF-style orientation of a captured buffer.
type Orientation int

const (
	OrientationUp Orientation = iota
	OrientationDown
	OrientationLeft
	OrientationRight
	OrientationUpMirrored
	OrientationDownMirrored
	OrientationLeftMirrored
	OrientationRightMirrored
)

// IsPortrait reports whether the buffer must be rotated a quarter turn to display upright.
func (o Orientation) IsPortrait() bool {
	switch o {
	case OrientationLeft, OrientationRight, OrientationLeftMirrored, OrientationRightMirrored:
		return true
	default:
		return false
	}
}

// Photo is the raw hardware result of a capture. A nil Image means the
// hardware produced no usable data.
type Photo struct {
	Image       image.Image
	Orientation Orientation
}

// PhotoSettings are per-request capture settings.
type PhotoSettings struct {
	Flash bool
}

// PhotoHandler receives the hardware callback, on a hardware goroutine.
type PhotoHandler func(Photo, error)

// PhotoOutput captures still images from a running session.
type PhotoOutput interface {
	// CapturePhoto submits a request; handler is invoked asynchronously.
	CapturePhoto(settings PhotoSettings, handler PhotoHandler) error
}

// Session is the hardware capture pipeline. Structural changes (inputs and
// outputs) are only legal between BeginConfiguration and CommitConfiguration.
type Session interface {
	BeginConfiguration()
	CommitConfiguration()

	Inputs() []Input
	CanAddInput(Input) bool
	AddInput(Input)
	RemoveInput(Input)
	CanAddOutput(PhotoOutput) bool
	AddOutput(PhotoOutput)
	RemoveOutput(PhotoOutput)

	StartRunning() error
	StopRunning()
	IsRunning() bool
}

// Provider discovers devices and creates session objects.
type Provider interface {
	Device(pos Position) (Device, bool)
	OpenInput(dev Device) (Input, error)
	NewSession() Session
	NewPhotoOutput() PhotoOutput
}
