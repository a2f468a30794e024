package geometry

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestFitPreview(t *testing.T) {
	bounds := Rect{W: 300, H: 600}
	tests := []struct {
		ratio Ratio
		want  Rect
	}{
		{Ratio4x3, Rect{X: 0, Y: 100, W: 300, H: 400}},
		{Ratio1x1, Rect{X: 0, Y: 150, W: 300, H: 300}},
		{Ratio16x9, Rect{X: 0, Y: (600 - 300*16.0/9.0) / 2, W: 300, H: 300 * 16.0 / 9.0}},
	}
	for _, tt := range tests {
		t.Run(tt.ratio.String(), func(t *testing.T) {
			got := FitPreview(bounds, tt.ratio.PortraitAspect())
			if !almostEqual(got.X, tt.want.X) || !almostEqual(got.Y, tt.want.Y) ||
				!almostEqual(got.W, tt.want.W) || !almostEqual(got.H, tt.want.H) {
				t.Errorf("FitPreview() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFitPreview_HeightLimited(t *testing.T) {
	// Landscape view: the 3:4 portrait frame is limited by height.
	got := FitPreview(Rect{W: 800, H: 400}, Ratio4x3.PortraitAspect())
	if !almostEqual(got.H, 400) || !almostEqual(got.W, 300) || !almostEqual(got.X, 250) {
		t.Errorf("FitPreview() = %+v", got)
	}
}

func TestFitPreview_EmptyBounds(t *testing.T) {
	if got := FitPreview(Rect{}, 0.75); !got.Empty() {
		t.Errorf("expected empty frame, got %+v", got)
	}
}

func TestCompute_AllRatios(t *testing.T) {
	bounds := Rect{X: 10, Y: 20, W: 390, H: 844}
	for _, ratio := range Ratios {
		t.Run(ratio.String(), func(t *testing.T) {
			g := Compute(bounds, ratio, DefaultCornerLength)
			f := g.Frame

			if g.Ratio != ratio || g.Bounds != bounds {
				t.Fatalf("geometry not tagged with inputs: %+v", g)
			}
			if !almostEqual(f.W/f.H, ratio.PortraitAspect()) {
				t.Errorf("frame aspect = %v, want %v", f.W/f.H, ratio.PortraitAspect())
			}

			// Verticals at 1/3 and 2/3 of the frame width, full height.
			for i, seg := range g.Grid[:2] {
				x := f.X + f.W*float64(i+1)/3
				if !almostEqual(seg.From.X, x) || !almostEqual(seg.To.X, x) {
					t.Errorf("vertical %d at x=%v, want %v", i, seg.From.X, x)
				}
				if !almostEqual(seg.From.Y, f.Y) || !almostEqual(seg.To.Y, f.MaxY()) {
					t.Errorf("vertical %d spans %v..%v", i, seg.From.Y, seg.To.Y)
				}
			}
			// Horizontals at 1/3 and 2/3 of the frame height, full width.
			for i, seg := range g.Grid[2:] {
				y := f.Y + f.H*float64(i+1)/3
				if !almostEqual(seg.From.Y, y) || !almostEqual(seg.To.Y, y) {
					t.Errorf("horizontal %d at y=%v, want %v", i, seg.From.Y, y)
				}
				if !almostEqual(seg.From.X, f.X) || !almostEqual(seg.To.X, f.MaxX()) {
					t.Errorf("horizontal %d spans %v..%v", i, seg.From.X, seg.To.X)
				}
			}

			vertices := []Point{{f.X, f.Y}, {f.MaxX(), f.Y}, {f.X, f.MaxY()}, {f.MaxX(), f.MaxY()}}
			for i, c := range g.Corners {
				if !almostEqual(c[1].X, vertices[i].X) || !almostEqual(c[1].Y, vertices[i].Y) {
					t.Errorf("corner %d vertex = %+v, want %+v", i, c[1], vertices[i])
				}
				for _, end := range []Point{c[0], c[2]} {
					arm := math.Hypot(end.X-c[1].X, end.Y-c[1].Y)
					if !almostEqual(arm, DefaultCornerLength) {
						t.Errorf("corner %d arm length = %v", i, arm)
					}
				}
			}
		})
	}
}

func TestCornerPaths_LengthIndependentOfBounds(t *testing.T) {
	small := CornerPaths(Rect{W: 60, H: 80}, 20)
	large := CornerPaths(Rect{W: 1200, H: 1600}, 20)
	if small[0][2].X != 20 || large[0][2].X != 20 {
		t.Errorf("top-left arm should end at x=20: %v, %v", small[0][2], large[0][2])
	}
}

func TestInterpolate(t *testing.T) {
	a := Compute(Rect{W: 300, H: 600}, Ratio4x3, 20)
	b := Compute(Rect{W: 300, H: 600}, Ratio1x1, 20)

	if got := Interpolate(a, b, 0); got.Frame != a.Frame || got.Grid != a.Grid {
		t.Error("t=0 should return the start geometry")
	}
	if got := Interpolate(a, b, 1); got != b {
		t.Error("t=1 should return the end geometry")
	}
	mid := Interpolate(a, b, 0.5)
	if !almostEqual(mid.Frame.H, (a.Frame.H+b.Frame.H)/2) {
		t.Errorf("mid frame height = %v", mid.Frame.H)
	}
	if got := Interpolate(a, b, 7); got != b {
		t.Error("t above 1 should clamp to the end geometry")
	}
}

func TestRatioCycle(t *testing.T) {
	r := Ratio4x3
	seen := []Ratio{r}
	for i := 0; i < 3; i++ {
		r = r.Next()
		seen = append(seen, r)
	}
	want := []Ratio{Ratio4x3, Ratio1x1, Ratio16x9, Ratio4x3}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("cycle = %v, want %v", seen, want)
		}
	}
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		in      string
		want    Ratio
		wantErr bool
	}{
		{"4:3", Ratio4x3, false},
		{"1x1", Ratio1x1, false},
		{" 16:9 ", Ratio16x9, false},
		{"3:2", Ratio4x3, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRatio(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRatioTextRoundTrip(t *testing.T) {
	var r Ratio
	if err := r.UnmarshalText([]byte("16:9")); err != nil || r != Ratio16x9 {
		t.Fatalf("UnmarshalText: %v, %v", r, err)
	}
	b, _ := r.MarshalText()
	if string(b) != "16:9" {
		t.Errorf("MarshalText = %q", b)
	}
}

func TestEaseInEaseOut(t *testing.T) {
	c := EaseInEaseOut
	if c.At(0) != 0 || c.At(1) != 1 {
		t.Fatal("curve must start at 0 and end at 1")
	}
	if !almostEqual(c.At(0.5), 0.5) {
		t.Errorf("symmetric curve At(0.5) = %v", c.At(0.5))
	}
	if c.At(0.1) >= 0.1 {
		t.Errorf("ease-in should start slow: At(0.1) = %v", c.At(0.1))
	}
	prev := 0.0
	for i := 1; i <= 100; i++ {
		v := c.At(float64(i) / 100)
		if v < prev {
			t.Fatalf("curve not monotonic at %d: %v < %v", i, v, prev)
		}
		prev = v
	}
}
