package events

import (
	"encoding/json"
	"fmt"
	"image"
	"testing"
	"time"
)

func TestHub_SubscribeAndReceive(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	defer unsub()

	h.Publish(ZoomScaleChanged{Scale: 2})

	select {
	case e := <-ch:
		z, ok := e.(ZoomScaleChanged)
		if !ok {
			t.Fatalf("got %T, want ZoomScaleChanged", e)
		}
		if z.Scale != 2 {
			t.Errorf("scale = %v, want 2", z.Scale)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestHub_MultipleSubscribers(t *testing.T) {
	h := NewHub()
	ch1, unsub1 := h.Subscribe()
	defer unsub1()
	ch2, unsub2 := h.Subscribe()
	defer unsub2()

	h.Publish(TorchChanged{On: true})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Name() != "torch" {
				t.Errorf("subscriber %d: name = %q", i, e.Name())
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timeout", i)
		}
	}
}

func TestHub_UnsubscribeClosesChannelOnce(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	unsub()
	unsub() // second call must not panic on a closed channel

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
	if h.Subscribers() != 0 {
		t.Errorf("subscribers = %d, want 0", h.Subscribers())
	}
	h.Publish(TorchChanged{}) // publishing after unsubscribe must not panic
}

func TestHub_FullChannelDropsEvent(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	defer unsub()

	for i := 0; i < subscriberBuffer; i++ {
		h.Publish(ZoomScaleChanged{Scale: float64(i)})
	}

	done := make(chan struct{})
	go func() {
		h.Publish(ZoomScaleChanged{Scale: -1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
	first := <-ch
	if first.(ZoomScaleChanged).Scale != 0 {
		t.Errorf("first event scale = %v, want 0", first.(ZoomScaleChanged).Scale)
	}
}

func TestHub_EachEventDeliveredAtMostOnce(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	defer unsub()

	h.Publish(NewCaptureCompleted("req-1", nil, false))
	<-ch
	select {
	case e := <-ch:
		t.Fatalf("unexpected second delivery: %#v", e)
	default:
	}
}

func TestHub_NilSafe(t *testing.T) {
	var h *Hub
	h.Publish(TorchChanged{})
	NewHub().Publish(nil)
}

func TestNewCaptureCompleted(t *testing.T) {
	evt := NewCaptureCompleted("abc", image.NewRGBA(image.Rect(0, 0, 40, 30)), true)
	if evt.Width != 40 || evt.Height != 30 || !evt.Cropped {
		t.Errorf("event = %+v", evt)
	}
	none := NewCaptureCompleted("abc", nil, false)
	if none.Image != nil || none.Width != 0 {
		t.Errorf("none event = %+v", none)
	}
}

func TestEncode(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data, err := Encode(ZoomScaleChanged{Scale: 2.5, FieldOfView: 30}, now)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var env struct {
		Time  string          `json:"t"`
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Event != "zoom" || env.Time != "2024-05-01T12:00:00Z" {
		t.Errorf("envelope = %+v", env)
	}
	var z ZoomScaleChanged
	if err := json.Unmarshal(env.Data, &z); err != nil || z.Scale != 2.5 {
		t.Errorf("data = %s (%v)", env.Data, err)
	}
}

func TestEncode_CaptureOmitsPixels(t *testing.T) {
	evt := NewCaptureCompleted("r", image.NewRGBA(image.Rect(0, 0, 4, 4)), false)
	data, err := Encode(evt, time.Now())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) > 200 {
		t.Errorf("capture envelope unexpectedly large (%d bytes): pixels leaked", len(data))
	}
}

func TestWriter(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	defer unsub()

	w := Writer(h)
	fmt.Fprintf(w, "  session started  \n")
	fmt.Fprint(w, "   ")

	select {
	case e := <-ch:
		line, ok := e.(LogLine)
		if !ok || line.Msg != "session started" {
			t.Errorf("got %#v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
	select {
	case e := <-ch:
		t.Errorf("blank write should be skipped, got %#v", e)
	default:
	}
}

func TestHub_CriticalEventDisplacesOldest(t *testing.T) {
	h := NewHub()
	ch, unsub := h.Subscribe()
	defer unsub()

	for i := 0; i < subscriberBuffer; i++ {
		h.Publish(ZoomScaleChanged{Scale: float64(i)})
	}

	done := make(chan struct{})
	go func() {
		h.Publish(NewCaptureCompleted("req-1", nil, false))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if len(ch) != subscriberBuffer {
		t.Fatalf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
	var got []Event
	for len(ch) > 0 {
		got = append(got, <-ch)
	}
	if z := got[0].(ZoomScaleChanged).Scale; z != 1 {
		t.Errorf("first event scale = %v, want 1 (oldest evicted)", z)
	}
	last, ok := got[len(got)-1].(CaptureCompleted)
	if !ok {
		t.Fatalf("last event = %T, want CaptureCompleted", got[len(got)-1])
	}
	if last.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", last.RequestID)
	}
}

func TestHub_CriticalEventTypes(t *testing.T) {
	cases := []struct {
		e    Event
		want bool
	}{
		{NewCaptureCompleted("r", nil, false), true},
		{SessionStateChanged{}, true},
		{SessionFailed{}, true},
		{DeviceChanged{}, true},
		{ZoomScaleChanged{}, false},
		{TorchChanged{}, false},
		{LogLine{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.e.Name(), func(t *testing.T) {
			if _, ok := tc.e.(Critical); ok != tc.want {
				t.Errorf("critical = %v, want %v", ok, tc.want)
			}
		})
	}
}
