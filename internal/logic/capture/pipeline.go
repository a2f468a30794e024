package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/events"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

const (
	tracerName = "github.com/cjeanneret/camctl/internal/logic/capture"

	// DefaultTimeout bounds how long a request may wait for the hardware.
	DefaultTimeout = 10 * time.Second
	// FlashFade is each half of the shutter flash effect.
	FlashFade = 100 * time.Millisecond
)

var errNoImageData = errors.New("no image data")

// Status is the state of a capture request.
type Status int

const (
	Idle Status = iota
	Pending
	Processing
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Pending:
		return "Pending"
	case Processing:
		return "Processing"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Request is one capture call.
type Request struct {
	ID          string
	SubmittedAt time.Time
	Status      Status
}

// Result is the one-shot outcome of a capture. A nil Image is "none": the
// caller should try again. Err explains a none result and is never fatal.
type Result struct {
	RequestID string
	Image     image.Image
	Cropped   bool
	Err       error
}

// None reports whether the capture produced no image.
func (r Result) None() bool { return r.Image == nil }

// Session is what the pipeline needs from the session coordinator.
type Session interface {
	IsRunning() bool
	PhotoOutput() camera.PhotoOutput
}

// Options configures a Pipeline.
type Options struct {
	Session Session
	Hub     *events.Hub      // optional
	Timeout time.Duration    // defaults to DefaultTimeout
	Ratio   geometry.Ratio   // initial crop ratio
	Now     func() time.Time // defaults to time.Now
	Tracer  trace.Tracer     // defaults to the global provider
}

// Pipeline runs single-flight capture requests: at most one request is
// Pending or Processing at any time, and every accepted request resolves
// exactly once.
type Pipeline struct {
	session Session
	hub     *events.Hub
	timeout time.Duration
	now     func() time.Time
	tracer  trace.Tracer

	mu      sync.Mutex
	ratio   geometry.Ratio
	current *Request
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		session: opts.Session,
		hub:     opts.Hub,
		timeout: opts.Timeout,
		now:     opts.Now,
		tracer:  opts.Tracer,
		ratio:   opts.Ratio,
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	return p
}

// SetRatio selects the crop ratio for subsequent requests.
func (p *Pipeline) SetRatio(r geometry.Ratio) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ratio = r
}

// Ratio returns the crop ratio.
func (p *Pipeline) Ratio() geometry.Ratio {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ratio
}

// Current returns the in-flight request, if any.
func (p *Pipeline) Current() (Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Request{}, false
	}
	return *p.current, true
}

func (p *Pipeline) setStatus(req *Request, from, to Status) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if req.Status != from {
		return false
	}
	req.Status = to
	debug.Transition("capture", from.String(), to.String())
	return true
}

// Capture submits a request and returns a channel that receives exactly one
// Result and is then closed. While another request is in flight the call is
// rejected with camera.ErrCaptureInProgress and nothing is started.
//
// A session that is not running, a hardware failure, an expired timeout or a
// cancelled ctx all resolve the request to a none result.
func (p *Pipeline) Capture(ctx context.Context) (<-chan Result, error) {
	p.mu.Lock()
	if p.current != nil {
		id := p.current.ID
		p.mu.Unlock()
		debug.Verbose("Capture rejected: %s still in flight", id)
		return nil, camera.ErrCaptureInProgress
	}
	req := &Request{ID: uuid.NewString(), SubmittedAt: p.now(), Status: Pending}
	p.current = req
	ratio := p.ratio
	p.mu.Unlock()

	debug.Transition("capture", Idle.String(), Pending.String())
	ctx, span := p.tracer.Start(ctx, "capture.request", trace.WithAttributes(
		attribute.String("capture.request_id", req.ID),
		attribute.String("capture.ratio", ratio.String()),
	))

	out := make(chan Result, 1)
	finished := make(chan struct{})
	var once sync.Once
	deliver := func(res Result) {
		once.Do(func() {
			res.RequestID = req.ID
			status := Completed
			if res.None() {
				status = Failed
			}
			p.mu.Lock()
			from := req.Status
			req.Status = status
			if p.current == req {
				p.current = nil
			}
			p.mu.Unlock()
			debug.Transition("capture", from.String(), status.String())

			if res.Err != nil {
				span.RecordError(res.Err)
				span.SetStatus(codes.Error, res.Err.Error())
			}
			span.SetAttributes(attribute.Bool("capture.cropped", res.Cropped))
			span.End()

			p.hub.Publish(events.NewCaptureCompleted(req.ID, res.Image, res.Cropped))
			out <- res
			close(out)
			close(finished)
		})
	}

	output := p.session.PhotoOutput()
	if output == nil || !p.session.IsRunning() {
		deliver(Result{Err: camera.ErrSessionNotRunning})
		return out, nil
	}

	p.hub.Publish(events.ShutterFlash{RequestID: req.ID, FadeIn: FlashFade, FadeOut: FlashFade})

	var handled atomic.Bool
	handler := func(photo camera.Photo, err error) {
		if !handled.CompareAndSwap(false, true) {
			debug.Trace("Capture %s: duplicate hardware callback dropped", req.ID)
			return
		}
		if !p.setStatus(req, Pending, Processing) {
			return // already resolved by timeout or cancellation
		}
		if err != nil || photo.Image == nil {
			cause := err
			if cause == nil {
				cause = errNoImageData
			}
			deliver(Result{Err: camera.WrapError(camera.CodeCaptureFailed, "capture "+req.ID, cause)})
			return
		}
		img, cropped := CropToRatio(photo.Image, ratio.WidthOverHeight())
		deliver(Result{Image: Upright(img, photo.Orientation), Cropped: cropped})
	}

	if err := output.CapturePhoto(camera.PhotoSettings{Flash: false}, handler); err != nil {
		deliver(Result{Err: camera.WrapError(camera.CodeCaptureFailed, "submit "+req.ID, err)})
		return out, nil
	}

	go func() {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		select {
		case <-finished:
		case <-timer.C:
			debug.Info("Capture %s timed out after %v", req.ID, p.timeout)
			deliver(Result{Err: camera.WrapError(camera.CodeCaptureFailed, "capture "+req.ID, context.DeadlineExceeded)})
		case <-ctx.Done():
			deliver(Result{Err: camera.WrapError(camera.CodeCaptureFailed, "capture "+req.ID, ctx.Err())})
		}
	}()

	return out, nil
}
