package events

import (
	"image"
	"time"

	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// Event is a notification published on a Hub.
type Event interface {
	Name() string
}

// Critical marks events a subscriber must not miss: outcomes rather than
// samples of a changing value. See Hub.Publish.
type Critical interface {
	Event
	critical()
}

// ZoomScaleChanged reports the zoom factor applied to the device.
type ZoomScaleChanged struct {
	Scale       float64 `json:"scale"`
	FieldOfView float64 `json:"fov_deg,omitempty"`
}

func (ZoomScaleChanged) Name() string { return "zoom" }

// CaptureCompleted carries the one-shot result of a capture request.
// A nil Image is the "none" result: the caller should try again.
type CaptureCompleted struct {
	RequestID string      `json:"request_id"`
	Image     image.Image `json:"-"`
	Width     int         `json:"width,omitempty"`
	Height    int         `json:"height,omitempty"`
	Cropped   bool        `json:"cropped"`
}

// NewCaptureCompleted fills the reported dimensions from img.
func NewCaptureCompleted(requestID string, img image.Image, cropped bool) CaptureCompleted {
	evt := CaptureCompleted{RequestID: requestID, Image: img, Cropped: cropped}
	if img != nil {
		b := img.Bounds()
		evt.Width, evt.Height = b.Dx(), b.Dy()
	}
	return evt
}

func (CaptureCompleted) Name() string { return "capture" }
func (CaptureCompleted) critical() {}

// ShutterFlash asks the presentation layer to play the capture flash.
type ShutterFlash struct {
	RequestID string        `json:"request_id"`
	FadeIn    time.Duration `json:"fade_in"`
	FadeOut   time.Duration `json:"fade_out"`
}

func (ShutterFlash) Name() string { return "flash" }

// SessionStateChanged reports a capture session transition.
type SessionStateChanged struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (SessionStateChanged) Name() string { return "session" }
func (SessionStateChanged) critical() {}

// SessionFailed reports a start or switch that could not complete.
type SessionFailed struct {
	Op      string      `json:"op"`
	Code    camera.Code `json:"code,omitempty"`
	Message string      `json:"message"`
}

func (SessionFailed) Name() string { return "session_failed" }
func (SessionFailed) critical() {}

// DeviceChanged publishes the capabilities of the newly active device.
type DeviceChanged struct {
	ID           string              `json:"id"`
	Position     string              `json:"position"`
	Capabilities camera.Capabilities `json:"capabilities"`
}

func (DeviceChanged) Name() string { return "device" }
func (DeviceChanged) critical() {}

// TorchChanged reports the torch state after a toggle.
type TorchChanged struct {
	On bool `json:"on"`
}

func (TorchChanged) Name() string { return "torch" }

// OverlayChanged reports new overlay geometry (the transition target).
type OverlayChanged struct {
	Ratio          string            `json:"ratio"`
	GridVisible    bool              `json:"grid_visible"`
	CornersVisible bool              `json:"corners_visible"`
	Geometry       geometry.Geometry `json:"geometry"`
}

func (OverlayChanged) Name() string { return "overlay" }

// FocusIndicatorShown reports a tap-to-focus indicator at a view location.
type FocusIndicatorShown struct {
	Normalized camera.Point `json:"normalized"`
	View       camera.Point `json:"view"`
	Size       float64      `json:"size"`
}

func (FocusIndicatorShown) Name() string { return "focus" }

// LogLine mirrors a log message onto the event stream.
type LogLine struct {
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
}

func (LogLine) Name() string { return "log" }
