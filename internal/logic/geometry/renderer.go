package geometry

import (
	"sync"
	"time"

	"github.com/cjeanneret/camctl/internal/debug"
)

// DefaultTransition is the duration of a bounds or ratio transition.
const DefaultTransition = 250 * time.Millisecond

// Overlay is what the presentation layer draws for one frame.
type Overlay struct {
	Geometry
	GridVisible    bool    `json:"grid_visible"`
	CornersVisible bool    `json:"corners_visible"`
	Progress       float64 `json:"progress"`
}

// RendererOptions configures a Renderer. Zero values take the defaults.
type RendererOptions struct {
	CornerLength float64
	Duration     time.Duration
	Curve        *CubicBezier
	Now          func() time.Time
}

// Renderer keeps the overlay in sync with view bounds and ratio. Grid and
// corners always move together in one transition.
type Renderer struct {
	mu           sync.Mutex
	cornerLength float64
	duration     time.Duration
	curve        CubicBezier
	now          func() time.Time

	bounds  Rect
	ratio   Ratio
	grid    bool
	corners bool

	target    Geometry
	from      *Geometry // transition start; nil once settled
	startedAt time.Time
}

// NewRenderer creates a renderer for an empty view at 4:3.
func NewRenderer(opts RendererOptions) *Renderer {
	r := &Renderer{
		cornerLength: opts.CornerLength,
		duration:     opts.Duration,
		curve:        EaseInEaseOut,
		now:          opts.Now,
		ratio:        Ratio4x3,
	}
	if r.cornerLength <= 0 {
		r.cornerLength = DefaultCornerLength
	}
	if r.duration <= 0 {
		r.duration = DefaultTransition
	}
	if opts.Curve != nil {
		r.curve = *opts.Curve
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.target = Compute(r.bounds, r.ratio, r.cornerLength)
	return r
}

// SetBounds relayouts the overlay for new view bounds and returns the
// transition target.
func (r *Renderer) SetBounds(b Rect) Geometry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b == r.bounds {
		return r.target
	}
	r.bounds = b
	return r.retarget()
}

// SetRatio relayouts the overlay for a new ratio and returns the transition
// target.
func (r *Renderer) SetRatio(ratio Ratio) Geometry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ratio == r.ratio {
		return r.target
	}
	r.ratio = ratio
	return r.retarget()
}

// retarget must be called with r.mu held.
func (r *Renderer) retarget() Geometry {
	now := r.now()
	next := Compute(r.bounds, r.ratio, r.cornerLength)

	if r.target.Frame.Empty() {
		// First layout: nothing on screen to animate from.
		r.from = nil
	} else {
		start := r.frameAt(now).Geometry
		r.from = &start
		r.startedAt = now
	}
	r.target = next
	debug.Verbose("Overlay: %s frame %.0fx%.0f", r.ratio, next.Frame.W, next.Frame.H)
	return next
}

// frameAt must be called with r.mu held.
func (r *Renderer) frameAt(now time.Time) Overlay {
	o := Overlay{Geometry: r.target, GridVisible: r.grid, CornersVisible: r.corners, Progress: 1}
	if r.from == nil {
		return o
	}
	elapsed := now.Sub(r.startedAt)
	if elapsed >= r.duration {
		r.from = nil
		return o
	}
	linear := float64(elapsed) / float64(r.duration)
	if linear < 0 {
		linear = 0
	}
	o.Geometry = Interpolate(*r.from, r.target, r.curve.At(linear))
	o.Progress = linear
	return o
}

// Frame returns the overlay to draw at now. Once the transition has run its
// course the start geometry is dropped and only the target remains.
func (r *Renderer) Frame(now time.Time) Overlay {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameAt(now)
}

// Settled reports whether no transition is in flight at now.
func (r *Renderer) Settled(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frameAt(now)
	return r.from == nil
}

// Target returns the geometry the overlay is moving to.
func (r *Renderer) Target() Geometry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

// Ratio returns the current ratio.
func (r *Renderer) Ratio() Ratio {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ratio
}

// SetGridVisible shows or hides the grid.
func (r *Renderer) SetGridVisible(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grid = on
}

// ToggleGrid flips grid visibility and returns the new value.
func (r *Renderer) ToggleGrid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grid = !r.grid
	return r.grid
}

// GridVisible reports whether the grid is shown.
func (r *Renderer) GridVisible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grid
}

// ShowCorners shows or hides the corner guides.
func (r *Renderer) ShowCorners(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corners = on
}

// CornersVisible reports whether the corner guides are shown.
func (r *Renderer) CornersVisible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.corners
}
