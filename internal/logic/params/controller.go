package params

import (
	"math"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/events"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

const (
	// MinZoom is the widest zoom factor.
	MinZoom = 1.0
	// DefaultMaxZoom caps zoom when neither device nor configuration does.
	DefaultMaxZoom = 100.0
	// isoPerMovement scales a pan movement into an ISO change.
	isoPerMovement = 100.0
)

// DeviceSource gives access to the currently active device.
type DeviceSource interface {
	ActiveDevice() (camera.Device, bool)
}

// Controller applies focus, exposure, zoom and torch changes to the active
// device. Each change holds the device configuration lock for its duration
// only. Concurrent changes are last-writer-wins.
type Controller struct {
	src     DeviceSource
	hub     *events.Hub
	zoomCap float64
}

// New creates a controller. zoomCap <= 0 selects DefaultMaxZoom.
func New(src DeviceSource, hub *events.Hub, zoomCap float64) *Controller {
	if zoomCap <= 0 || zoomCap > DefaultMaxZoom {
		zoomCap = DefaultMaxZoom
	}
	return &Controller{src: src, hub: hub, zoomCap: zoomCap}
}

func (c *Controller) device() (camera.Device, bool) {
	dev, ok := c.src.ActiveDevice()
	if !ok || dev == nil {
		debug.Verbose("Params: no active device")
		return nil, false
	}
	return dev, true
}

// configure runs fn with the device configuration lock held. The lock is
// released on every path; a failed acquisition aborts only this change.
func configure(dev camera.Device, op string, fn func()) error {
	if err := dev.LockForConfiguration(); err != nil {
		return camera.WrapError(camera.CodeConfigurationLockFailed, op+": lock "+dev.ID(), err)
	}
	defer dev.UnlockForConfiguration()
	fn()
	return nil
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}

// SetFocus focuses (and meters, when the device supports it) at p, given in
// normalized [0,1]² frame coordinates. Devices without point-of-interest
// autofocus are left alone.
func (c *Controller) SetFocus(p camera.Point) error {
	dev, ok := c.device()
	if !ok {
		return nil
	}
	caps := dev.Capabilities()
	if !caps.FocusPointOfInterest || !caps.AutoFocus {
		debug.Verbose("Params: %s has no focus point of interest, skipping", dev.ID())
		return nil
	}
	p = camera.Point{X: clampUnit(p.X), Y: clampUnit(p.Y)}

	return configure(dev, "focus", func() {
		dev.SetFocusPoint(p)
		dev.SetFocusMode(camera.AutoFocus)
		if caps.ExposurePointOfInterest && caps.AutoExpose {
			dev.SetExposurePoint(p)
			dev.SetExposureMode(camera.AutoExpose)
		}
		debug.Live("Focus at (%.3f, %.3f)", p.X, p.Y)
	})
}

// Exposure is the result of an exposure adjustment.
type Exposure struct {
	Bias float64 `json:"bias"`
	ISO  float64 `json:"iso,omitempty"`
}

// AdjustExposure applies a relative movement: bias decreases by movement and
// ISO by movement×100, each clamped to the device's range. Devices without a
// bias range are left alone.
func (c *Controller) AdjustExposure(movement float64) (Exposure, error) {
	dev, ok := c.device()
	if !ok {
		return Exposure{}, nil
	}
	caps := dev.Capabilities()
	if !caps.ExposureBias.Valid() || math.IsNaN(movement) {
		debug.Verbose("Params: %s has no exposure bias range, skipping", dev.ID())
		return Exposure{}, nil
	}

	curBias := dev.ExposureBias()
	bias := caps.ExposureBias.Clamp(curBias - movement)

	curISO := dev.ISO()
	iso := curISO
	if caps.ISO.Valid() {
		iso = caps.ISO.Clamp(curISO - movement*isoPerMovement)
	}
	result := Exposure{Bias: bias, ISO: iso}

	if bias == curBias && iso == curISO {
		return result, nil
	}
	err := configure(dev, "exposure", func() {
		if iso != curISO {
			dev.SetExposureMode(camera.ExposureCustom)
			dev.SetISO(iso)
			debug.Param("iso", curISO, iso)
		}
		if bias != curBias {
			dev.SetExposureBias(bias)
			debug.Param("bias", curBias, bias)
		}
	})
	if err != nil {
		return Exposure{Bias: curBias, ISO: curISO}, err
	}
	return result, nil
}

// MaxZoom returns the effective zoom ceiling for the active device.
func (c *Controller) MaxZoom() float64 {
	dev, ok := c.device()
	if !ok {
		return c.zoomCap
	}
	return c.maxZoomFor(dev)
}

func (c *Controller) maxZoomFor(dev camera.Device) float64 {
	limit := c.zoomCap
	if dm := dev.Capabilities().MaxZoom; dm >= MinZoom && dm < limit {
		limit = dm
	}
	return limit
}

// Zoom returns the active device's zoom factor.
func (c *Controller) Zoom() float64 {
	dev, ok := c.device()
	if !ok {
		return MinZoom
	}
	return dev.ZoomFactor()
}

// BeginZoom returns the zoom a pinch gesture starts from. The gesture
// adapter keeps it for the whole gesture and passes base×factor to SetZoom.
func (c *Controller) BeginZoom() float64 {
	return c.Zoom()
}

// SetZoom clamps scale to [1, MaxZoom], applies it and publishes exactly one
// ZoomScaleChanged with the applied value.
func (c *Controller) SetZoom(scale float64) (float64, error) {
	dev, ok := c.device()
	if !ok {
		return MinZoom, nil
	}
	if math.IsNaN(scale) {
		scale = MinZoom
	}
	target := math.Max(MinZoom, math.Min(scale, c.maxZoomFor(dev)))
	cur := dev.ZoomFactor()

	if target != cur {
		err := configure(dev, "zoom", func() {
			dev.SetZoomFactor(target)
			debug.Param("zoom", cur, target)
		})
		if err != nil {
			return cur, err
		}
	}

	c.hub.Publish(events.ZoomScaleChanged{Scale: target, FieldOfView: FieldOfView(dev, target)})
	return target, nil
}

// FieldOfView returns the horizontal angle of view in degrees of dev at the
// given zoom, or 0 when its optics are not described.
func FieldOfView(dev camera.Device, zoom float64) float64 {
	lens := dev.Capabilities().Lens
	return geometry.FieldOfView(lens.SensorWidthMm, lens.FocalLengthMm, zoom)
}

// SetTorch switches the torch. Devices without one are left alone.
func (c *Controller) SetTorch(on bool) error {
	dev, ok := c.device()
	if !ok {
		return nil
	}
	if !dev.Capabilities().Torch {
		debug.Verbose("Params: %s has no torch, skipping", dev.ID())
		return nil
	}
	if dev.TorchActive() == on {
		return nil
	}

	var torchErr error
	err := configure(dev, "torch", func() {
		torchErr = dev.SetTorch(on)
	})
	if err != nil {
		return err
	}
	if torchErr != nil {
		return torchErr
	}
	c.hub.Publish(events.TorchChanged{On: on})
	debug.Live("Torch %v", on)
	return nil
}
