// Package gesture turns raw tap, pan and pinch samples into focus, exposure
// and zoom changes.
package gesture

import (
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/events"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
	"github.com/cjeanneret/camctl/internal/logic/params"
)

// Params is the subset of the parameter controller used by gestures.
type Params interface {
	SetFocus(p camera.Point) error
	AdjustExposure(movement float64) (params.Exposure, error)
	BeginZoom() float64
	SetZoom(scale float64) (float64, error)
}

// Adapter keeps per-gesture state. All methods are safe for concurrent use,
// but samples of one gesture are expected in order.
type Adapter struct {
	params Params
	hub    *events.Hub
	now    func() time.Time

	mu         sync.Mutex
	bounds     geometry.Rect
	panY       float64
	pinching   bool
	baseZoom   float64
	cumulative float64
	indicator  *FocusIndicator
	generation uint64
}

// NewAdapter creates an adapter. now defaults to time.Now.
func NewAdapter(p Params, hub *events.Hub, now func() time.Time) *Adapter {
	if now == nil {
		now = time.Now
	}
	return &Adapter{params: p, hub: hub, now: now, cumulative: 1}
}

// SetBounds sets the view rectangle used to normalize positions.
func (a *Adapter) SetBounds(r geometry.Rect) {
	a.mu.Lock()
	a.bounds = r
	a.mu.Unlock()
}

// Bounds returns the view rectangle.
func (a *Adapter) Bounds() geometry.Rect {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bounds
}

// Indicator returns the focus indicator currently on screen.
func (a *Adapter) Indicator() (FocusIndicator, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.indicator == nil {
		return FocusIndicator{}, false
	}
	return *a.indicator, true
}

// Handle dispatches one gesture sample. The returned error comes from the
// parameter change it triggered, if any; gesture state is updated regardless.
func (a *Adapter) Handle(ev Event) error {
	switch ev.Kind {
	case Tap:
		return a.tap(ev)
	case Pan:
		return a.pan(ev)
	case Pinch:
		return a.pinch(ev)
	}
	debug.Verbose("Gesture: ignoring %v", ev.Kind)
	return nil
}

func (a *Adapter) tap(ev Event) error {
	if ev.Phase != Ended {
		return nil
	}
	a.mu.Lock()
	b := a.bounds
	if b.Empty() {
		a.mu.Unlock()
		debug.Verbose("Gesture: tap before view bounds are known")
		return nil
	}
	norm := camera.Point{
		X: clamp01((ev.Location.X - b.X) / b.W),
		Y: clamp01((ev.Location.Y - b.Y) / b.H),
	}
	a.generation++
	ind := &FocusIndicator{
		Generation: a.generation,
		Center:     ev.Location,
		Size:       IndicatorSize,
		ShownAt:    a.now(),
	}
	a.indicator = ind
	a.mu.Unlock()

	a.hub.Publish(events.FocusIndicatorShown{
		Normalized: norm,
		View:       camera.Point{X: ev.Location.X, Y: ev.Location.Y},
		Size:       ind.Size,
	})
	debug.Trace("Gesture: tap at (%.1f, %.1f) -> (%.3f, %.3f)", ev.Location.X, ev.Location.Y, norm.X, norm.Y)
	return a.params.SetFocus(norm)
}

func (a *Adapter) pan(ev Event) error {
	a.mu.Lock()
	switch ev.Phase {
	case Began:
		a.panY = 0
		a.mu.Unlock()
		return nil
	case Ended, Cancelled:
		a.panY = 0
		a.mu.Unlock()
		return nil
	}
	h := a.bounds.H
	if h <= 0 {
		a.mu.Unlock()
		return nil
	}
	a.panY += ev.Delta.Y
	movement := a.panY / h * 2
	a.mu.Unlock()

	_, err := a.params.AdjustExposure(movement)
	return err
}

func (a *Adapter) pinch(ev Event) error {
	switch ev.Phase {
	case Began:
		base := a.params.BeginZoom()
		a.mu.Lock()
		a.pinching = true
		a.baseZoom = base
		a.cumulative = 1
		a.mu.Unlock()
		return nil
	case Ended, Cancelled:
		a.mu.Lock()
		a.pinching = false
		a.cumulative = 1
		a.mu.Unlock()
		return nil
	}

	if ev.Scale <= 0 || math.IsNaN(ev.Scale) || math.IsInf(ev.Scale, 0) {
		return nil
	}

	a.mu.Lock()
	if !a.pinching {
		a.mu.Unlock()
		base := a.params.BeginZoom()
		a.mu.Lock()
		a.pinching = true
		a.baseZoom = base
		a.cumulative = 1
	}
	a.cumulative *= ev.Scale
	base := a.baseZoom
	target := base * a.cumulative
	a.mu.Unlock()

	applied, err := a.params.SetZoom(target)
	if err != nil {
		return err
	}
	// Re-derive from the clamped value so pinching back from a limit responds
	// immediately.
	if base > 0 {
		a.mu.Lock()
		a.cumulative = applied / base
		a.mu.Unlock()
	}
	return nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}
