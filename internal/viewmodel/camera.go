// Package viewmodel is the boundary between a presentation layer and the
// camera session controller. It forwards commands, keeps the state a view
// draws from and republishes controller events.
package viewmodel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/capture"
	"github.com/cjeanneret/camctl/internal/logic/events"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
	"github.com/cjeanneret/camctl/internal/logic/gesture"
	"github.com/cjeanneret/camctl/internal/logic/mainloop"
	"github.com/cjeanneret/camctl/internal/logic/params"
	"github.com/cjeanneret/camctl/internal/logic/session"
)

// Options configures a Camera. Zero values take the package defaults.
type Options struct {
	Provider       camera.Provider
	Hub            *events.Hub
	UI             mainloop.Dispatcher
	Tracer         trace.Tracer
	ZoomCap        float64
	CaptureTimeout time.Duration
	Ratio          geometry.Ratio
	CornerLength   float64
	Transition     time.Duration
	Now            func() time.Time
}

// State is a snapshot of everything a camera view draws from.
type State struct {
	Session         string               `json:"session"`
	Position        string               `json:"position"`
	Running         bool                 `json:"running"`
	Device          string               `json:"device,omitempty"`
	Capabilities    *camera.Capabilities `json:"capabilities,omitempty"`
	Ratio           geometry.Ratio       `json:"ratio"`
	GridVisible     bool                 `json:"grid_visible"`
	CornersVisible  bool                 `json:"corners_visible"`
	Torch           bool                 `json:"torch"`
	Zoom            float64              `json:"zoom"`
	MaxZoom         float64              `json:"max_zoom"`
	FieldOfView     float64              `json:"field_of_view,omitempty"`
	ExposureBias    float64              `json:"exposure_bias"`
	ISO             float64              `json:"iso,omitempty"`
	PreviewAttached bool                 `json:"preview_attached"`
	Capturing       bool                 `json:"capturing"`
	LastError       string               `json:"last_error,omitempty"`
}

// Camera wires the session coordinator, parameter controller, capture
// pipeline, overlay renderer and gesture adapter behind one set of commands.
type Camera struct {
	hub      *events.Hub
	ui       mainloop.Dispatcher
	now      func() time.Time
	session  *session.Coordinator
	params   *params.Controller
	capture  *capture.Pipeline
	overlay  *geometry.Renderer
	gestures *gesture.Adapter

	mu      sync.Mutex
	zoom    float64
	fov     float64
	preview camera.Session
	lastErr string

	unsubscribe func()
	watchDone   chan struct{}
	closeOnce   sync.Once
}

// New builds the controller stack and starts watching zoom events.
func New(opts Options) *Camera {
	c := &Camera{
		hub:       opts.Hub,
		ui:        opts.UI,
		now:       opts.Now,
		zoom:      params.MinZoom,
		watchDone: make(chan struct{}),
	}
	if c.hub == nil {
		c.hub = events.NewHub()
	}
	if c.ui == nil {
		c.ui = mainloop.Immediate{}
	}
	if c.now == nil {
		c.now = time.Now
	}

	c.session = session.New(session.Options{
		Provider: opts.Provider,
		Hub:      c.hub,
		UI:       c.ui,
		Preview:  c,
		Tracer:   opts.Tracer,
	})
	c.params = params.New(c.session, c.hub, opts.ZoomCap)
	c.capture = capture.New(capture.Options{
		Session: c.session,
		Hub:     c.hub,
		Timeout: opts.CaptureTimeout,
		Ratio:   opts.Ratio,
		Now:     c.now,
		Tracer:  opts.Tracer,
	})
	c.overlay = geometry.NewRenderer(geometry.RendererOptions{
		CornerLength: opts.CornerLength,
		Duration:     opts.Transition,
		Now:          c.now,
	})
	c.overlay.SetRatio(opts.Ratio)
	c.gestures = gesture.NewAdapter(c.params, c.hub, c.now)

	ch, unsub := c.hub.Subscribe()
	c.unsubscribe = unsub
	go c.watch(ch)
	return c
}

// watch mirrors controller events into the view state.
func (c *Camera) watch(ch <-chan events.Event) {
	defer close(c.watchDone)
	for e := range ch {
		switch ev := e.(type) {
		case events.ZoomScaleChanged:
			c.mu.Lock()
			c.zoom = ev.Scale
			c.fov = ev.FieldOfView
			c.mu.Unlock()
		case events.DeviceChanged:
			c.mu.Lock()
			c.zoom = params.MinZoom
			if dev, ok := c.session.ActiveDevice(); ok {
				c.zoom = dev.ZoomFactor()
				c.fov = params.FieldOfView(dev, c.zoom)
			}
			c.mu.Unlock()
		case events.SessionFailed:
			c.setError(ev.Message)
		}
	}
}

// Close stops the session and releases the event subscription.
func (c *Camera) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.session.Close()
		c.unsubscribe()
		<-c.watchDone
	})
	return err
}

// Hub returns the event hub the camera publishes on.
func (c *Camera) Hub() *events.Hub { return c.hub }

// Subscribe registers for controller events. Call the returned function to
// unsubscribe.
func (c *Camera) Subscribe() (<-chan events.Event, func()) {
	return c.hub.Subscribe()
}

func (c *Camera) setError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
}

// report records err for the view and returns it unchanged.
func (c *Camera) report(err error) error {
	if err != nil {
		c.setError(err.Error())
	}
	return err
}

// AttachPreview implements session.PreviewSink.
func (c *Camera) AttachPreview(s camera.Session) {
	c.mu.Lock()
	c.preview = s
	c.mu.Unlock()
	debug.Verbose("ViewModel: preview attached")
}

// DetachPreview implements session.PreviewSink.
func (c *Camera) DetachPreview() {
	c.mu.Lock()
	c.preview = nil
	c.mu.Unlock()
	debug.Verbose("ViewModel: preview detached")
}

// StartSession starts the camera at pos and shows the corner guides.
func (c *Camera) StartSession(ctx context.Context, pos camera.Position) error {
	if err := c.session.Start(ctx, pos); err != nil {
		return c.report(err)
	}
	c.setError("")
	c.overlay.ShowCorners(true)
	c.ui.Dispatch(c.publishOverlay)
	return nil
}

// StopSession stops the camera and hides the corner guides.
func (c *Camera) StopSession(ctx context.Context) error {
	if err := c.session.Stop(ctx); err != nil {
		return c.report(err)
	}
	c.overlay.ShowCorners(false)
	c.ui.Dispatch(c.publishOverlay)
	return nil
}

// SwitchCamera moves the session to the back or front camera.
func (c *Camera) SwitchCamera(ctx context.Context, isBack bool) error {
	pos := camera.Front
	if isBack {
		pos = camera.Back
	}
	return c.report(c.session.Switch(ctx, pos))
}

// ToggleCamera switches to the opposite camera.
func (c *Camera) ToggleCamera(ctx context.Context) error {
	return c.SwitchCamera(ctx, c.session.Position() != camera.Back)
}

// SetFocusPoint focuses at normalized frame coordinates.
func (c *Camera) SetFocusPoint(x, y float64) error {
	return c.report(c.params.SetFocus(camera.Point{X: x, Y: y}))
}

// SetExposureBias applies a relative exposure movement.
func (c *Camera) SetExposureBias(delta float64) (params.Exposure, error) {
	exp, err := c.params.AdjustExposure(delta)
	return exp, c.report(err)
}

// SetZoom applies a zoom factor and returns the clamped value.
func (c *Camera) SetZoom(scale float64) (float64, error) {
	z, err := c.params.SetZoom(scale)
	return z, c.report(err)
}

// SetTorch switches the torch.
func (c *Camera) SetTorch(on bool) error {
	return c.report(c.params.SetTorch(on))
}

// ToggleTorch flips the torch.
func (c *Camera) ToggleTorch() error {
	on := false
	if dev, ok := c.session.ActiveDevice(); ok {
		on = dev.TorchActive()
	}
	return c.SetTorch(!on)
}

// SetGridVisible shows or hides the grid.
func (c *Camera) SetGridVisible(on bool) {
	c.overlay.SetGridVisible(on)
	c.ui.Dispatch(c.publishOverlay)
}

// ToggleGrid flips the grid.
func (c *Camera) ToggleGrid() {
	c.overlay.ToggleGrid()
	c.ui.Dispatch(c.publishOverlay)
}

// UpdateRatio selects the ratio used by the overlay and by later captures.
func (c *Camera) UpdateRatio(r geometry.Ratio) {
	c.capture.SetRatio(r)
	c.overlay.SetRatio(r)
	c.ui.Dispatch(c.publishOverlay)
}

// CycleRatio moves to the next ratio and returns it.
func (c *Camera) CycleRatio() geometry.Ratio {
	next := c.capture.Ratio().Next()
	c.UpdateRatio(next)
	return next
}

// SetViewBounds records the preview view's rectangle.
func (c *Camera) SetViewBounds(r geometry.Rect) {
	c.gestures.SetBounds(r)
	c.overlay.SetBounds(r)
	c.ui.Dispatch(c.publishOverlay)
}

// HandleGesture forwards a raw gesture sample.
func (c *Camera) HandleGesture(ev gesture.Event) error {
	return c.report(c.gestures.Handle(ev))
}

// Capture takes a photo with the selected ratio. See capture.Pipeline.
func (c *Camera) Capture(ctx context.Context) (<-chan capture.Result, error) {
	return c.capture.Capture(ctx)
}

// Overlay returns the overlay to draw at now.
func (c *Camera) Overlay(now time.Time) geometry.Overlay {
	return c.overlay.Frame(now)
}

// FocusIndicator returns the tap-to-focus indicator and its frame at now.
func (c *Camera) FocusIndicator(now time.Time) (gesture.FocusIndicator, gesture.IndicatorFrame, bool) {
	ind, ok := c.gestures.Indicator()
	if !ok {
		return ind, gesture.IndicatorFrame{}, false
	}
	return ind, ind.At(now), true
}

// publishOverlay announces the renderer's current state. The renderer is
// updated by the caller; only the notification goes through the UI
// dispatcher, so reads right after a command see the new values.
func (c *Camera) publishOverlay() {
	c.hub.Publish(events.OverlayChanged{
		Ratio:          c.overlay.Ratio().String(),
		GridVisible:    c.overlay.GridVisible(),
		CornersVisible: c.overlay.CornersVisible(),
		Geometry:       c.overlay.Target(),
	})
}

// State returns a snapshot of the view state.
func (c *Camera) State() State {
	st := State{
		Session:        c.session.State().String(),
		Position:       c.session.Position().String(),
		Running:        c.session.IsRunning(),
		Ratio:          c.capture.Ratio(),
		GridVisible:    c.overlay.GridVisible(),
		CornersVisible: c.overlay.CornersVisible(),
		MaxZoom:        c.params.MaxZoom(),
	}
	_, st.Capturing = c.capture.Current()

	if dev, ok := c.session.ActiveDevice(); ok {
		caps := dev.Capabilities()
		st.Device = dev.ID()
		st.Capabilities = &caps
		st.Torch = dev.TorchActive()
		st.ExposureBias = dev.ExposureBias()
		st.ISO = dev.ISO()
	}

	c.mu.Lock()
	st.Zoom = c.zoom
	st.FieldOfView = c.fov
	st.PreviewAttached = c.preview != nil
	st.LastError = c.lastErr
	c.mu.Unlock()
	return st
}
