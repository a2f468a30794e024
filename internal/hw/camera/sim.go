package camera

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/cjeanneret/camctl/internal/debug"
)

// SimDeviceSpec describes a simulated camera.
type SimDeviceSpec struct {
	ID           string
	Position     Position
	Capabilities Capabilities
	Width        int // photo width in pixels
	Height       int // photo height in pixels
	Orientation  Orientation
	InitialISO   float64
}

// SimProvider is an in-memory camera rig. It backs development runs and
// tests; devices are described by configuration.
type SimProvider struct {
	mu         sync.Mutex
	devices    map[Position]*SimDevice
	openErrs   map[Position]error
	photoDelay time.Duration
	outputs    []*SimPhotoOutput
}

// NewSimProvider creates a provider exposing the given devices.
func NewSimProvider(photoDelay time.Duration, specs ...SimDeviceSpec) *SimProvider {
	p := &SimProvider{
		devices:    make(map[Position]*SimDevice),
		openErrs:   make(map[Position]error),
		photoDelay: photoDelay,
	}
	for _, s := range specs {
		p.devices[s.Position] = newSimDevice(s)
	}
	return p
}

// Device looks up the device at pos.
func (p *SimProvider) Device(pos Position) (Device, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.devices[pos]
	if !ok {
		return nil, false
	}
	return d, true
}

// SimDevice returns the concrete simulated device at pos, for inspection.
func (p *SimProvider) SimDevice(pos Position) *SimDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.devices[pos]
}

// SetOpenError makes OpenInput fail for the device at pos (nil clears it).
func (p *SimProvider) SetOpenError(pos Position, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.openErrs, pos)
		return
	}
	p.openErrs[pos] = err
}

// OpenInput opens dev as a session input.
func (p *SimProvider) OpenInput(dev Device) (Input, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.openErrs[dev.Position()]; err != nil {
		return nil, err
	}
	return &simInput{dev: dev}, nil
}

// NewSession creates an idle session.
func (p *SimProvider) NewSession() Session {
	return &SimSession{}
}

// NewPhotoOutput creates a photo output that renders frames of the active device.
func (p *SimProvider) NewPhotoOutput() PhotoOutput {
	o := &SimPhotoOutput{delay: p.photoDelay}
	p.mu.Lock()
	p.outputs = append(p.outputs, o)
	p.mu.Unlock()
	return o
}

// LastPhotoOutput returns the most recently created output, or nil.
func (p *SimProvider) LastPhotoOutput() *SimPhotoOutput {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.outputs) == 0 {
		return nil
	}
	return p.outputs[len(p.outputs)-1]
}

type simInput struct {
	dev Device
}

func (i *simInput) Device() Device { return i.dev }

// SimDevice is a simulated camera. Setters called without the
// configuration lock are counted as violations.
type SimDevice struct {
	mu    sync.Mutex
	spec  SimDeviceSpec
	torch TorchLine

	locked     bool
	lockErr    error
	locks      int
	unlocks    int
	violations int
	writes     int

	focusMode     FocusMode
	focusPoint    Point
	exposureMode  ExposureMode
	exposurePoint Point
	bias          float64
	iso           float64
	zoom          float64
	torchOn       bool
}

// TorchLine drives an external torch (e.g. a GPIO LED). A nil line keeps the
// torch state in memory.
type TorchLine interface {
	Set(on bool) error
	Active() bool
}

func newSimDevice(s SimDeviceSpec) *SimDevice {
	iso := s.InitialISO
	if iso == 0 && s.Capabilities.ISO.Valid() {
		iso = s.Capabilities.ISO.Min
	}
	return &SimDevice{
		spec:          s,
		zoom:          1.0,
		iso:           iso,
		focusPoint:    Point{X: 0.5, Y: 0.5},
		exposurePoint: Point{X: 0.5, Y: 0.5},
		focusMode:     ContinuousAutoFocus,
		exposureMode:  ContinuousAutoExposure,
	}
}

// AttachTorch routes torch control through line and advertises torch support.
func (d *SimDevice) AttachTorch(line TorchLine) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.torch = line
	d.spec.Capabilities.Torch = line != nil || d.spec.Capabilities.Torch
}

// FailLocks makes LockForConfiguration return err (nil restores it).
func (d *SimDevice) FailLocks(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lockErr = err
}

func (d *SimDevice) ID() string { return d.spec.ID }

func (d *SimDevice) Position() Position { return d.spec.Position }

// Size returns the photo dimensions in pixels.
func (d *SimDevice) Size() (int, int) { return d.spec.Width, d.spec.Height }

func (d *SimDevice) orientation() Orientation { return d.spec.Orientation }

func (d *SimDevice) Capabilities() Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.spec.Capabilities
}

func (d *SimDevice) LockForConfiguration() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lockErr != nil {
		debug.Lock(d.spec.ID, false)
		return d.lockErr
	}
	if d.locked {
		debug.Lock(d.spec.ID, false)
		return errors.New("device already locked")
	}
	d.locked = true
	d.locks++
	debug.Lock(d.spec.ID, true)
	return nil
}

func (d *SimDevice) UnlockForConfiguration() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked {
		d.unlocks++
	}
	d.locked = false
}

// Locked reports whether the configuration lock is currently held.
func (d *SimDevice) Locked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

// LockStats returns (acquisitions, releases).
func (d *SimDevice) LockStats() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locks, d.unlocks
}

// Violations counts setter calls made without the configuration lock.
func (d *SimDevice) Violations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.violations
}

// Writes counts setter calls.
func (d *SimDevice) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

// write must be called with d.mu held.
func (d *SimDevice) write() {
	d.writes++
	if !d.locked {
		d.violations++
	}
}

func (d *SimDevice) SetFocusMode(m FocusMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.write()
	d.focusMode = m
}

func (d *SimDevice) SetFocusPoint(p Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.write()
	d.focusPoint = p
}

func (d *SimDevice) SetExposureMode(m ExposureMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.write()
	d.exposureMode = m
}

func (d *SimDevice) SetExposurePoint(p Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.write()
	d.exposurePoint = p
}

// Focus returns the current focus mode and point.
func (d *SimDevice) Focus() (FocusMode, Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.focusMode, d.focusPoint
}

// Exposure returns the current exposure mode and point.
func (d *SimDevice) Exposure() (ExposureMode, Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exposureMode, d.exposurePoint
}

func (d *SimDevice) ExposureBias() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bias
}

func (d *SimDevice) SetExposureBias(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.write()
	d.bias = v
}

func (d *SimDevice) ISO() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.iso
}

func (d *SimDevice) SetISO(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.write()
	d.iso = v
}

func (d *SimDevice) ZoomFactor() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zoom
}

func (d *SimDevice) SetZoomFactor(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.write()
	d.zoom = v
}

func (d *SimDevice) TorchActive() bool {
	d.mu.Lock()
	line := d.torch
	on := d.torchOn
	d.mu.Unlock()
	if line != nil {
		return line.Active()
	}
	return on
}

func (d *SimDevice) SetTorch(on bool) error {
	d.mu.Lock()
	d.write()
	line := d.torch
	d.mu.Unlock()
	if line != nil {
		if err := line.Set(on); err != nil {
			return fmt.Errorf("torch line: %w", err)
		}
	}
	d.mu.Lock()
	d.torchOn = on
	d.mu.Unlock()
	return nil
}

// SimSession is an in-memory capture session. Structural changes outside a
// configuration block are counted as violations.
type SimSession struct {
	mu          sync.Mutex
	configuring int
	commits     int
	violations  int
	inputs      []Input
	outputs     []PhotoOutput
	running     bool
	startErr    error
}

func (s *SimSession) BeginConfiguration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configuring++
}

func (s *SimSession) CommitConfiguration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configuring > 0 {
		s.configuring--
		s.commits++
	}
}

// Configuring reports whether a configuration block is open.
func (s *SimSession) Configuring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configuring > 0
}

// Commits counts committed configuration blocks.
func (s *SimSession) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Violations counts structural changes made outside configuration blocks.
func (s *SimSession) Violations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.violations
}

// FailStart makes StartRunning return err.
func (s *SimSession) FailStart(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErr = err
}

func (s *SimSession) checkConfiguring() {
	if s.configuring == 0 {
		s.violations++
	}
}

func (s *SimSession) Inputs() []Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Input(nil), s.inputs...)
}

func (s *SimSession) CanAddInput(in Input) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in == nil {
		return false
	}
	for _, cur := range s.inputs {
		if cur == in || cur.Device().Position() == in.Device().Position() {
			return false
		}
	}
	// One camera input at a time.
	return len(s.inputs) == 0
}

func (s *SimSession) AddInput(in Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkConfiguring()
	s.inputs = append(s.inputs, in)
}

func (s *SimSession) RemoveInput(in Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkConfiguring()
	for i, cur := range s.inputs {
		if cur == in {
			s.inputs = append(s.inputs[:i], s.inputs[i+1:]...)
			return
		}
	}
}

func (s *SimSession) CanAddOutput(out PhotoOutput) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.outputs {
		if cur == out {
			return false
		}
	}
	return out != nil
}

func (s *SimSession) AddOutput(out PhotoOutput) {
	s.mu.Lock()
	s.checkConfiguring()
	s.outputs = append(s.outputs, out)
	s.mu.Unlock()
	if so, ok := out.(*SimPhotoOutput); ok {
		so.attach(s)
	}
}

func (s *SimSession) RemoveOutput(out PhotoOutput) {
	s.mu.Lock()
	s.checkConfiguring()
	for i, cur := range s.outputs {
		if cur == out {
			s.outputs = append(s.outputs[:i], s.outputs[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if so, ok := out.(*SimPhotoOutput); ok {
		so.attach(nil)
	}
}

func (s *SimSession) StartRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.running = true
	return nil
}

func (s *SimSession) StopRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

func (s *SimSession) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *SimSession) activeDevice() *SimDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.inputs {
		if d, ok := in.Device().(*SimDevice); ok {
			return d
		}
	}
	return nil
}

// SimPhotoOutput renders a synthetic frame of the active device's size.
type SimPhotoOutput struct {
	mu        sync.Mutex
	session   *SimSession
	delay     time.Duration
	gate      chan struct{}
	failNext  int
	duplicate bool
	requests  int
}

func (o *SimPhotoOutput) attach(s *SimSession) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session = s
}

// Hold makes subsequent callbacks wait until the returned release is called.
func (o *SimPhotoOutput) Hold() (release func()) {
	gate := make(chan struct{})
	o.mu.Lock()
	o.gate = gate
	o.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			if o.gate == gate {
				o.gate = nil
			}
			o.mu.Unlock()
			close(gate)
		})
	}
}

// FailNext makes the next n captures deliver no image data.
func (o *SimPhotoOutput) FailNext(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failNext = n
}

// DuplicateCallbacks makes the hardware invoke each handler twice.
func (o *SimPhotoOutput) DuplicateCallbacks(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.duplicate = on
}

// Requests counts CapturePhoto calls that were accepted.
func (o *SimPhotoOutput) Requests() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests
}

func (o *SimPhotoOutput) CapturePhoto(settings PhotoSettings, handler PhotoHandler) error {
	o.mu.Lock()
	sess := o.session
	if sess == nil || !sess.IsRunning() {
		o.mu.Unlock()
		return ErrSessionNotRunning
	}
	dev := sess.activeDevice()
	gate, delay, duplicate := o.gate, o.delay, o.duplicate
	fail := o.failNext > 0
	if fail {
		o.failNext--
	}
	o.requests++
	o.mu.Unlock()

	go func() {
		if gate != nil {
			<-gate
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		photo := Photo{}
		if !fail && dev != nil {
			w, h := dev.Size()
			photo = Photo{Image: renderFrame(w, h), Orientation: dev.orientation()}
		}
		handler(photo, nil)
		if duplicate {
			handler(photo, nil)
		}
	}()
	return nil
}

// renderFrame draws a horizontal gradient so crops are visually checkable.
func renderFrame(w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		shade := uint8(255 * y / h)
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(255 * x / w), G: shade, B: 128, A: 255})
		}
	}
	return img
}
