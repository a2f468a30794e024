package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/events"
	"github.com/cjeanneret/camctl/internal/logic/mainloop"
)

const tracerName = "github.com/cjeanneret/camctl/internal/logic/session"

// ErrClosed is returned by operations submitted after Close.
var ErrClosed = errors.New("session: coordinator closed")

// State is the lifecycle state of the capture session.
type State int

const (
	Idle State = iota
	Configuring
	Running
	SwitchingDevice
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Configuring:
		return "Configuring"
	case Running:
		return "Running"
	case SwitchingDevice:
		return "SwitchingDevice"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// PreviewSink is the live preview surface. Its methods are always called on
// the UI dispatcher.
type PreviewSink interface {
	AttachPreview(s camera.Session)
	DetachPreview()
}

// Options configures a Coordinator.
type Options struct {
	Provider camera.Provider
	Hub      *events.Hub         // optional
	UI       mainloop.Dispatcher // defaults to mainloop.Immediate
	Preview  PreviewSink         // optional
	Tracer   trace.Tracer        // defaults to the global provider
}

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Coordinator owns the capture session. Every structural change runs on its
// worker goroutine, one configuration transaction at a time.
type Coordinator struct {
	provider camera.Provider
	hub      *events.Hub
	ui       mainloop.Dispatcher
	preview  PreviewSink
	tracer   trace.Tracer

	jobs      chan job
	closing   chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu       sync.RWMutex
	state    State
	position camera.Position
	session  camera.Session
	input    camera.Input
	output   camera.PhotoOutput
}

// New creates a coordinator and starts its worker.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		provider: opts.Provider,
		hub:      opts.Hub,
		ui:       opts.UI,
		preview:  opts.Preview,
		tracer:   opts.Tracer,
		jobs:     make(chan job),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	if c.ui == nil {
		c.ui = mainloop.Immediate{}
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
	return c
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-c.jobs:
			if err := j.ctx.Err(); err != nil {
				j.done <- err
				continue
			}
			j.done <- j.fn(j.ctx)
		}
	}
}

// do runs fn on the worker and waits for its result. If ctx ends first the
// caller gets ctx.Err(); a job that already started still runs to the end.
func (c *Coordinator) do(ctx context.Context, fn func(context.Context) error) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case c.jobs <- j:
	case <-c.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.done:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start opens the device at pos and runs the session. Starting a running
// session is a no-op. On failure the session stays Idle and the error is
// also published as a SessionFailed event.
func (c *Coordinator) Start(ctx context.Context, pos camera.Position) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.start(ctx, pos)
	})
}

// Switch moves the running session to the device at pos. When Idle, pos is
// remembered for the next Start. If the new device cannot be wired in, the
// previous input is restored and the session keeps running on it.
func (c *Coordinator) Switch(ctx context.Context, pos camera.Position) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.switchTo(ctx, pos)
	})
}

// Stop stops the session and releases its input, output and preview.
// Stopping an idle session is a no-op.
func (c *Coordinator) Stop(ctx context.Context) error {
	return c.do(ctx, c.stop)
}

// Close stops the session, then cancels and joins the worker.
func (c *Coordinator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.do(context.Background(), c.stop)
		close(c.closing)
		c.cancel()
		<-c.done
	})
	return err
}

func (c *Coordinator) start(ctx context.Context, pos camera.Position) (err error) {
	_, span := c.tracer.Start(ctx, "session.start",
		trace.WithAttributes(attribute.String("camera.position", pos.String())))
	defer func() { endSpan(span, err) }()

	if c.State() != Idle {
		debug.Verbose("Session: start ignored in state %s", c.State())
		return nil
	}
	c.setState(Configuring)

	fail := func(err error) error {
		c.setState(Idle)
		c.publishFailure("start", err)
		return err
	}

	dev, ok := c.provider.Device(pos)
	if !ok {
		return fail(camera.NewError(camera.CodeDeviceUnavailable, fmt.Sprintf("no %s camera", pos)))
	}
	in, err := c.provider.OpenInput(dev)
	if err != nil {
		return fail(camera.WrapError(camera.CodeDeviceUnavailable, "open "+dev.ID(), err))
	}
	sess := c.provider.NewSession()
	out := c.provider.NewPhotoOutput()

	err = transaction(sess, func() error {
		if !sess.CanAddInput(in) {
			return camera.NewError(camera.CodeDeviceUnavailable, "session rejected input "+dev.ID())
		}
		sess.AddInput(in)
		if !sess.CanAddOutput(out) {
			sess.RemoveInput(in)
			return camera.NewError(camera.CodeDeviceUnavailable, "session rejected photo output")
		}
		sess.AddOutput(out)
		c.onUI(ctx, "attach preview", func() { c.preview.AttachPreview(sess) })
		return nil
	})
	if err != nil {
		return fail(err)
	}

	if err := sess.StartRunning(); err != nil {
		_ = transaction(sess, func() error {
			sess.RemoveOutput(out)
			sess.RemoveInput(in)
			return nil
		})
		c.onUI(ctx, "detach preview", func() { c.preview.DetachPreview() })
		return fail(camera.WrapError(camera.CodeDeviceUnavailable, "start "+dev.ID(), err))
	}

	c.mu.Lock()
	c.session, c.input, c.output, c.position = sess, in, out, pos
	c.mu.Unlock()

	c.setState(Running)
	c.publishDevice(dev)
	debug.Info("Session running on %s camera (%s)", pos, dev.ID())
	return nil
}

func (c *Coordinator) switchTo(ctx context.Context, pos camera.Position) (err error) {
	_, span := c.tracer.Start(ctx, "session.switch",
		trace.WithAttributes(attribute.String("camera.position", pos.String())))
	defer func() { endSpan(span, err) }()

	c.mu.RLock()
	state, sess, prev, cur := c.state, c.session, c.input, c.position
	c.mu.RUnlock()

	if state != Running {
		c.mu.Lock()
		c.position = pos
		c.mu.Unlock()
		debug.Verbose("Session: %s camera selected for next start", pos)
		return nil
	}
	if pos == cur {
		return nil
	}

	c.setState(SwitchingDevice)

	var next camera.Input
	err = transaction(sess, func() error {
		sess.RemoveInput(prev)
		rollback := func(err error) error {
			if sess.CanAddInput(prev) {
				sess.AddInput(prev)
			}
			return err
		}

		dev, ok := c.provider.Device(pos)
		if !ok {
			return rollback(camera.NewError(camera.CodeDeviceUnavailable, fmt.Sprintf("no %s camera", pos)))
		}
		in, err := c.provider.OpenInput(dev)
		if err != nil {
			return rollback(camera.WrapError(camera.CodeDeviceUnavailable, "open "+dev.ID(), err))
		}
		if !sess.CanAddInput(in) {
			return rollback(camera.NewError(camera.CodeDeviceUnavailable, "session rejected input "+dev.ID()))
		}
		sess.AddInput(in)
		next = in
		return nil
	})
	if err != nil {
		c.setState(Running)
		c.publishFailure("switch", err)
		debug.Info("Switch to %s failed, staying on %s: %v", pos, cur, err)
		return err
	}

	c.mu.Lock()
	c.input, c.position = next, pos
	c.mu.Unlock()

	c.setState(Running)
	c.publishDevice(next.Device())
	debug.Info("Switched to %s camera (%s)", pos, next.Device().ID())
	return nil
}

func (c *Coordinator) stop(ctx context.Context) (err error) {
	c.mu.RLock()
	state, sess, in, out := c.state, c.session, c.input, c.output
	c.mu.RUnlock()
	if state == Idle || sess == nil {
		return nil
	}

	_, span := c.tracer.Start(ctx, "session.stop")
	defer func() { endSpan(span, err) }()

	sess.StopRunning()
	_ = transaction(sess, func() error {
		if out != nil {
			sess.RemoveOutput(out)
		}
		if in != nil {
			sess.RemoveInput(in)
		}
		return nil
	})
	c.onUI(ctx, "detach preview", func() { c.preview.DetachPreview() })

	c.mu.Lock()
	c.session, c.input, c.output = nil, nil, nil
	c.mu.Unlock()

	c.setState(Idle)
	debug.Info("Session stopped")
	return nil
}

// onUI runs a preview change on the UI dispatcher and waits for it, so the
// preview matches the session when the operation returns. Once the UI loop
// has stopped nothing else owns the preview and fn runs here.
func (c *Coordinator) onUI(ctx context.Context, what string, fn func()) {
	if c.preview == nil {
		return
	}
	err := c.ui.DispatchSync(ctx, fn)
	switch {
	case errors.Is(err, mainloop.ErrStopped):
		fn()
	case err != nil:
		debug.Error(fmt.Errorf("session: %s: %w", what, err))
	}
}

// transaction brackets fn in a configuration block. The block is committed
// on every path so the session is never left half-configured.
func transaction(sess camera.Session, fn func() error) error {
	sess.BeginConfiguration()
	defer sess.CommitConfiguration()
	return fn()
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	from := c.state
	c.state = s
	c.mu.Unlock()
	if from == s {
		return
	}
	debug.Transition("session", from.String(), s.String())
	c.hub.Publish(events.SessionStateChanged{From: from.String(), To: s.String()})
}

func (c *Coordinator) publishDevice(dev camera.Device) {
	c.hub.Publish(events.DeviceChanged{
		ID:           dev.ID(),
		Position:     dev.Position().String(),
		Capabilities: dev.Capabilities(),
	})
}

func (c *Coordinator) publishFailure(op string, err error) {
	debug.Error(err)
	evt := events.SessionFailed{Op: op, Message: err.Error()}
	var ce *camera.Error
	if errors.As(err, &ce) {
		evt.Code = ce.Code
	}
	c.hub.Publish(evt)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Position returns the active position, or the one selected for the next start.
func (c *Coordinator) Position() camera.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.position
}

// ActiveDevice returns the device currently wired into the session.
func (c *Coordinator) ActiveDevice() (camera.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.input == nil {
		return nil, false
	}
	return c.input.Device(), true
}

// PhotoOutput returns the session's photo output, or nil when idle.
func (c *Coordinator) PhotoOutput() camera.PhotoOutput {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.output
}

// IsRunning reports whether the hardware session is running.
func (c *Coordinator) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil && c.session.IsRunning()
}
