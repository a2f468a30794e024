package geometry

import "math"

// DefaultCornerLength is the arm length of each corner guide, in points.
const DefaultCornerLength = 20.0

// Point is a position in view coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in view coordinates.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// MaxX returns the right edge.
func (r Rect) MaxX() float64 { return r.X + r.W }

// MaxY returns the bottom edge.
func (r Rect) MaxY() float64 { return r.Y + r.H }

// Segment is a straight grid line.
type Segment struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

// Corner is an L-shaped guide: arm end, corner vertex, arm end.
type Corner [3]Point

// Geometry is the complete overlay for one bounds/ratio pair. Grid lines are
// the two verticals followed by the two horizontals; corners are ordered
// top-left, top-right, bottom-left, bottom-right.
type Geometry struct {
	Bounds  Rect       `json:"bounds"`
	Ratio   Ratio      `json:"ratio"`
	Frame   Rect       `json:"frame"`
	Grid    [4]Segment `json:"grid"`
	Corners [4]Corner  `json:"corners"`
}

// FitPreview returns the largest rectangle with the given width/height
// aspect that fits inside bounds, centered.
func FitPreview(bounds Rect, aspect float64) Rect {
	if bounds.Empty() || aspect <= 0 || math.IsNaN(aspect) {
		return Rect{X: bounds.X, Y: bounds.Y}
	}
	w, h := bounds.W, bounds.W/aspect
	if h > bounds.H {
		h = bounds.H
		w = h * aspect
	}
	return Rect{
		X: bounds.X + (bounds.W-w)/2,
		Y: bounds.Y + (bounds.H-h)/2,
		W: w,
		H: h,
	}
}

// GridLines divides frame into a 3×3 grid.
func GridLines(frame Rect) [4]Segment {
	var lines [4]Segment
	for i := 1; i <= 2; i++ {
		x := frame.X + frame.W*float64(i)/3
		lines[i-1] = Segment{From: Point{x, frame.Y}, To: Point{x, frame.MaxY()}}
	}
	for i := 1; i <= 2; i++ {
		y := frame.Y + frame.H*float64(i)/3
		lines[i+1] = Segment{From: Point{frame.X, y}, To: Point{frame.MaxX(), y}}
	}
	return lines
}

// CornerPaths anchors four guides of the given arm length at the corners of
// frame. The length does not scale with the frame.
func CornerPaths(frame Rect, length float64) [4]Corner {
	x0, y0, x1, y1 := frame.X, frame.Y, frame.MaxX(), frame.MaxY()
	return [4]Corner{
		{{x0, y0 + length}, {x0, y0}, {x0 + length, y0}},
		{{x1 - length, y0}, {x1, y0}, {x1, y0 + length}},
		{{x0, y1 - length}, {x0, y1}, {x0 + length, y1}},
		{{x1 - length, y1}, {x1, y1}, {x1, y1 - length}},
	}
}

// Compute builds grid and corners together for bounds and ratio.
func Compute(bounds Rect, ratio Ratio, cornerLength float64) Geometry {
	frame := FitPreview(bounds, ratio.PortraitAspect())
	return Geometry{
		Bounds:  bounds,
		Ratio:   ratio,
		Frame:   frame,
		Grid:    GridLines(frame),
		Corners: CornerPaths(frame, cornerLength),
	}
}

// Interpolate blends every point of a towards b; t is clamped to [0,1].
// Bounds and ratio are taken from b.
func Interpolate(a, b Geometry, t float64) Geometry {
	if t >= 1 {
		return b
	}
	t = math.Max(0, t)
	out := b
	out.Frame = Rect{
		X: lerp(a.Frame.X, b.Frame.X, t),
		Y: lerp(a.Frame.Y, b.Frame.Y, t),
		W: lerp(a.Frame.W, b.Frame.W, t),
		H: lerp(a.Frame.H, b.Frame.H, t),
	}
	for i := range out.Grid {
		out.Grid[i] = Segment{
			From: lerpPoint(a.Grid[i].From, b.Grid[i].From, t),
			To:   lerpPoint(a.Grid[i].To, b.Grid[i].To, t),
		}
	}
	for i := range out.Corners {
		for j := range out.Corners[i] {
			out.Corners[i][j] = lerpPoint(a.Corners[i][j], b.Corners[i][j], t)
		}
	}
	return out
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func lerpPoint(a, b Point, t float64) Point {
	return Point{lerp(a.X, b.X, t), lerp(a.Y, b.Y, t)}
}
