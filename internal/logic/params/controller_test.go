package params

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/events"
)

// staticSource always reports the same device.
type staticSource struct {
	dev camera.Device
}

func (s staticSource) ActiveDevice() (camera.Device, bool) {
	return s.dev, s.dev != nil
}

func newDevice(caps camera.Capabilities) *camera.SimDevice {
	p := camera.NewSimProvider(0, camera.SimDeviceSpec{
		ID:           "back-0",
		Position:     camera.Back,
		Capabilities: caps,
		InitialISO:   400,
	})
	return p.SimDevice(camera.Back)
}

func fullCaps() camera.Capabilities {
	return camera.Capabilities{
		FocusPointOfInterest:    true,
		AutoFocus:               true,
		ExposurePointOfInterest: true,
		AutoExpose:              true,
		ExposureBias:            camera.Range{Min: -8, Max: 8},
		ISO:                     camera.Range{Min: 50, Max: 3200},
		MaxZoom:                 100,
		Torch:                   true,
		Lens:                    camera.Lens{FocalLengthMm: 4.25, SensorWidthMm: 5.64, SensorHeightMm: 4.23},
	}
}

func zoomEvents(ch <-chan events.Event) []events.ZoomScaleChanged {
	var out []events.ZoomScaleChanged
	for {
		select {
		case e := <-ch:
			if z, ok := e.(events.ZoomScaleChanged); ok {
				out = append(out, z)
			}
		default:
			return out
		}
	}
}

func assertReleased(t *testing.T, dev *camera.SimDevice) {
	t.Helper()
	if dev.Locked() {
		t.Error("configuration lock still held")
	}
	locks, unlocks := dev.LockStats()
	if locks != unlocks {
		t.Errorf("locks=%d unlocks=%d", locks, unlocks)
	}
	if dev.Violations() != 0 {
		t.Errorf("%d writes without the configuration lock", dev.Violations())
	}
}

func TestSetFocus_CenterPoint(t *testing.T) {
	dev := newDevice(fullCaps())
	c := New(staticSource{dev}, nil, 0)

	if err := c.SetFocus(camera.Point{X: 0.5, Y: 0.5}); err != nil {
		t.Fatalf("SetFocus: %v", err)
	}
	mode, p := dev.Focus()
	if mode != camera.AutoFocus || p != (camera.Point{X: 0.5, Y: 0.5}) {
		t.Errorf("focus = %v at %+v", mode, p)
	}
	emode, ep := dev.Exposure()
	if emode != camera.AutoExpose || ep != p {
		t.Errorf("exposure = %v at %+v, want joint metering", emode, ep)
	}
	assertReleased(t, dev)
}

func TestSetFocus_ClampsToUnitSquare(t *testing.T) {
	dev := newDevice(fullCaps())
	c := New(staticSource{dev}, nil, 0)

	_ = c.SetFocus(camera.Point{X: -0.2, Y: 1.7})
	if _, p := dev.Focus(); p != (camera.Point{X: 0, Y: 1}) {
		t.Errorf("focus point = %+v, want (0,1)", p)
	}
}

func TestSetFocus_WithoutExposurePoint(t *testing.T) {
	caps := fullCaps()
	caps.ExposurePointOfInterest = false
	dev := newDevice(caps)
	c := New(staticSource{dev}, nil, 0)

	_ = c.SetFocus(camera.Point{X: 0.2, Y: 0.3})
	if _, ep := dev.Exposure(); ep != (camera.Point{X: 0.5, Y: 0.5}) {
		t.Errorf("exposure point moved to %+v on a device without support", ep)
	}
}

func TestUnsupportedCapabilitiesAreNoOps(t *testing.T) {
	dev := newDevice(camera.Capabilities{MaxZoom: 4})
	c := New(staticSource{dev}, nil, 0)

	if err := c.SetFocus(camera.Point{X: 0.1, Y: 0.1}); err != nil {
		t.Errorf("SetFocus: %v", err)
	}
	if _, err := c.AdjustExposure(0.5); err != nil {
		t.Errorf("AdjustExposure: %v", err)
	}
	if err := c.SetTorch(true); err != nil {
		t.Errorf("SetTorch: %v", err)
	}
	if dev.Writes() != 0 {
		t.Errorf("writes = %d, want 0", dev.Writes())
	}
	if locks, _ := dev.LockStats(); locks != 0 {
		t.Errorf("lock taken %d times for unsupported changes", locks)
	}
}

func TestNoActiveDeviceIsNoOp(t *testing.T) {
	c := New(staticSource{}, nil, 0)
	if err := c.SetFocus(camera.Point{X: 0.5, Y: 0.5}); err != nil {
		t.Error(err)
	}
	if z, err := c.SetZoom(3); err != nil || z != MinZoom {
		t.Errorf("SetZoom = %v, %v", z, err)
	}
	if c.MaxZoom() != DefaultMaxZoom {
		t.Errorf("MaxZoom = %v", c.MaxZoom())
	}
}

func TestLockFailureAbortsOnlyThatChange(t *testing.T) {
	dev := newDevice(fullCaps())
	hub := events.NewHub()
	ch, unsub := hub.Subscribe()
	defer unsub()
	c := New(staticSource{dev}, hub, 0)

	dev.FailLocks(errors.New("busy"))
	z, err := c.SetZoom(3)
	if !errors.Is(err, camera.ErrConfigurationLockFailed) {
		t.Fatalf("err = %v, want ErrConfigurationLockFailed", err)
	}
	if z != 1 || dev.ZoomFactor() != 1 {
		t.Errorf("zoom changed despite lock failure: %v", dev.ZoomFactor())
	}
	if dev.Locked() {
		t.Error("device left locked")
	}
	if len(zoomEvents(ch)) != 0 {
		t.Error("no event should be published for an aborted change")
	}
	if err := c.SetFocus(camera.Point{X: 0.5, Y: 0.5}); !errors.Is(err, camera.ErrConfigurationLockFailed) {
		t.Errorf("SetFocus err = %v", err)
	}

	// The next change succeeds once the lock is available again.
	dev.FailLocks(nil)
	if _, err := c.SetZoom(3); err != nil {
		t.Fatalf("SetZoom after recovery: %v", err)
	}
	assertReleased(t, dev)
}

func TestPinchScenario_DoublesZoomWithOneEvent(t *testing.T) {
	dev := newDevice(fullCaps())
	hub := events.NewHub()
	ch, unsub := hub.Subscribe()
	defer unsub()
	c := New(staticSource{dev}, hub, 100)

	base := c.BeginZoom()
	if base != 1.0 {
		t.Fatalf("BeginZoom = %v, want 1.0", base)
	}
	z, err := c.SetZoom(base * 2.0)
	if err != nil {
		t.Fatalf("SetZoom: %v", err)
	}
	if z != 2.0 || dev.ZoomFactor() != 2.0 {
		t.Errorf("zoom = %v (device %v), want 2.0", z, dev.ZoomFactor())
	}
	evts := zoomEvents(ch)
	if len(evts) != 1 || evts[0].Scale != 2.0 {
		t.Fatalf("events = %+v, want one ZoomScaleChanged(2.0)", evts)
	}
	if evts[0].FieldOfView <= 0 || evts[0].FieldOfView >= FieldOfView(dev, 1) {
		t.Errorf("field of view = %v", evts[0].FieldOfView)
	}
}

func TestBeginZoom_ReadsLiveDeviceZoom(t *testing.T) {
	dev := newDevice(fullCaps())
	c := New(staticSource{dev}, events.NewHub(), 100)

	if _, err := c.SetZoom(3); err != nil {
		t.Fatal(err)
	}
	if got := c.BeginZoom(); got != 3 {
		t.Errorf("BeginZoom = %v, want 3", got)
	}
	// a zoom applied outside a pinch moves the next gesture's base
	if _, err := c.SetZoom(1.5); err != nil {
		t.Fatal(err)
	}
	if got := c.BeginZoom(); got != 1.5 {
		t.Errorf("BeginZoom = %v, want 1.5", got)
	}
}

func TestZoomStaysInRangeForAnyPinchSequence(t *testing.T) {
	dev := newDevice(fullCaps())
	hub := events.NewHub()
	ch, unsub := hub.Subscribe()
	defer unsub()
	c := New(staticSource{dev}, hub, 0)
	rng := rand.New(rand.NewSource(42))

	for gesture := 0; gesture < 20; gesture++ {
		base := c.BeginZoom()
		factor := 1.0
		for tick := 0; tick < 30; tick++ {
			factor *= math.Exp(rng.NormFloat64())
			z, err := c.SetZoom(base * factor)
			if err != nil {
				t.Fatalf("SetZoom: %v", err)
			}
			if z < MinZoom || z > c.MaxZoom() {
				t.Fatalf("zoom %v outside [1, %v]", z, c.MaxZoom())
			}
			if got := zoomEvents(ch); len(got) != 1 || got[0].Scale != z {
				t.Fatalf("tick %d: events = %+v, want one with %v", tick, got, z)
			}
		}
	}
	assertReleased(t, dev)
}

func TestZoomCap(t *testing.T) {
	tests := []struct {
		name      string
		deviceMax float64
		cap       float64
		want      float64
	}{
		{"device limits", 16, 0, 16},
		{"config limits", 16, 5, 5},
		{"default ceiling", 500, 0, DefaultMaxZoom},
		{"cap above ceiling", 500, 1000, DefaultMaxZoom},
		{"device unknown", 0, 8, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := fullCaps()
			caps.MaxZoom = tt.deviceMax
			dev := newDevice(caps)
			c := New(staticSource{dev}, nil, tt.cap)
			if got := c.MaxZoom(); got != tt.want {
				t.Errorf("MaxZoom = %v, want %v", got, tt.want)
			}
			if z, _ := c.SetZoom(1e6); z != tt.want {
				t.Errorf("SetZoom(1e6) = %v, want %v", z, tt.want)
			}
			if z, _ := c.SetZoom(0.2); z != MinZoom {
				t.Errorf("SetZoom(0.2) = %v, want 1", z)
			}
		})
	}
}

func TestSameZoomTwiceSkipsDeviceWrite(t *testing.T) {
	dev := newDevice(fullCaps())
	hub := events.NewHub()
	ch, unsub := hub.Subscribe()
	defer unsub()
	c := New(staticSource{dev}, hub, 0)

	_, _ = c.SetZoom(3)
	writes := dev.Writes()
	_, _ = c.SetZoom(3)
	if dev.Writes() != writes {
		t.Errorf("second identical SetZoom wrote to the device")
	}
	if got := zoomEvents(ch); len(got) != 2 {
		t.Errorf("events = %d, want one per call", len(got))
	}
}

func TestExposureStaysInRangeForAnyPanSequence(t *testing.T) {
	dev := newDevice(fullCaps())
	c := New(staticSource{dev}, nil, 0)
	rng := rand.New(rand.NewSource(7))
	caps := dev.Capabilities()

	for i := 0; i < 500; i++ {
		movement := rng.NormFloat64() * 3
		got, err := c.AdjustExposure(movement)
		if err != nil {
			t.Fatalf("AdjustExposure: %v", err)
		}
		if got.Bias < caps.ExposureBias.Min || got.Bias > caps.ExposureBias.Max {
			t.Fatalf("bias %v outside range", got.Bias)
		}
		if dev.ExposureBias() != got.Bias {
			t.Fatalf("device bias %v != reported %v", dev.ExposureBias(), got.Bias)
		}
		if got.ISO < caps.ISO.Min || got.ISO > caps.ISO.Max {
			t.Fatalf("iso %v outside range", got.ISO)
		}
	}
	assertReleased(t, dev)
}

func TestAdjustExposure_IsRelative(t *testing.T) {
	dev := newDevice(fullCaps())
	c := New(staticSource{dev}, nil, 0)

	_, _ = c.AdjustExposure(0.5)
	got, _ := c.AdjustExposure(0.5)
	if got.Bias != -1 {
		t.Errorf("bias = %v, want -1 after two movements of 0.5", got.Bias)
	}
	if got.ISO != 300 {
		t.Errorf("iso = %v, want 400 - 2×50", got.ISO)
	}
	if mode, _ := dev.Exposure(); mode != camera.ExposureCustom {
		t.Errorf("exposure mode = %v, want custom", mode)
	}
}

func TestAdjustExposure_AtLimitSkipsLock(t *testing.T) {
	caps := fullCaps()
	caps.ISO = camera.Range{}
	dev := newDevice(caps)
	c := New(staticSource{dev}, nil, 0)

	_, _ = c.AdjustExposure(-100) // to max
	locks, _ := dev.LockStats()
	got, _ := c.AdjustExposure(-1)
	if got.Bias != 8 {
		t.Errorf("bias = %v, want 8", got.Bias)
	}
	if l, _ := dev.LockStats(); l != locks {
		t.Error("clamped no-change adjustment should not lock the device")
	}
}

func TestSetTorch(t *testing.T) {
	dev := newDevice(fullCaps())
	hub := events.NewHub()
	ch, unsub := hub.Subscribe()
	defer unsub()
	c := New(staticSource{dev}, hub, 0)

	if err := c.SetTorch(true); err != nil {
		t.Fatalf("SetTorch: %v", err)
	}
	if !dev.TorchActive() {
		t.Error("torch should be on")
	}
	writes := dev.Writes()
	_ = c.SetTorch(true)
	if dev.Writes() != writes {
		t.Error("repeating the same torch state should not write")
	}

	select {
	case e := <-ch:
		if tc, ok := e.(events.TorchChanged); !ok || !tc.On {
			t.Errorf("event = %#v", e)
		}
	default:
		t.Error("expected TorchChanged event")
	}
	assertReleased(t, dev)
}
