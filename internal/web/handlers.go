package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/camera"
	"github.com/cjeanneret/camctl/internal/logic/capture"
	"github.com/cjeanneret/camctl/internal/logic/events"
	"github.com/cjeanneret/camctl/internal/logic/geometry"
	"github.com/cjeanneret/camctl/internal/logic/gesture"
	"github.com/cjeanneret/camctl/internal/logic/params"
	"github.com/cjeanneret/camctl/internal/viewmodel"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// heartbeat keeps idle SSE connections open through proxies.
const heartbeat = 30 * time.Second

// Camera is the controller boundary driven by the panel.
type Camera interface {
	StartSession(ctx context.Context, pos camera.Position) error
	StopSession(ctx context.Context) error
	SwitchCamera(ctx context.Context, isBack bool) error
	ToggleCamera(ctx context.Context) error
	SetFocusPoint(x, y float64) error
	SetExposureBias(delta float64) (params.Exposure, error)
	SetZoom(scale float64) (float64, error)
	SetTorch(on bool) error
	ToggleTorch() error
	SetGridVisible(on bool)
	ToggleGrid()
	UpdateRatio(r geometry.Ratio)
	CycleRatio() geometry.Ratio
	SetViewBounds(r geometry.Rect)
	HandleGesture(ev gesture.Event) error
	Capture(ctx context.Context) (<-chan capture.Result, error)
	Overlay(now time.Time) geometry.Overlay
	FocusIndicator(now time.Time) (gesture.FocusIndicator, gesture.IndicatorFrame, bool)
	State() viewmodel.State
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Camera      Camera
	Hub         *events.Hub
	JPEGQuality int
	staticFS    fs.FS
	now         func() time.Time
}

// NewHandlers creates handlers with the given dependencies.
// If cam is nil, every control route returns 503 Service Unavailable.
func NewHandlers(cam Camera, hub *events.Hub, jpegQuality int, staticFS fs.FS) *Handlers {
	return &Handlers{
		Camera:      cam,
		Hub:         hub,
		JPEGQuality: jpegQuality,
		staticFS:    staticFS,
		now:         time.Now,
	}
}

// ---------- request bodies ----------

// PositionRequest selects a camera. An empty position toggles.
type PositionRequest struct {
	Position string `json:"position"`
}

// FocusRequest is a normalized focus point.
type FocusRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// ExposureRequest is a relative exposure movement.
type ExposureRequest struct {
	Delta float64 `json:"delta"`
}

// ZoomRequest is an absolute zoom factor.
type ZoomRequest struct {
	Scale float64 `json:"scale"`
}

// ToggleRequest sets a switch. A missing value flips it.
type ToggleRequest struct {
	On *bool `json:"on"`
}

// RatioRequest selects a ratio. An empty ratio cycles.
type RatioRequest struct {
	Ratio string `json:"ratio"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateFocus checks that a focus point is inside [0,1]².
func ValidateFocus(f FocusRequest) error {
	if f.X == nil || f.Y == nil {
		return errors.New("x and y are required")
	}
	for _, v := range []float64{*f.X, *f.Y} {
		if !finite(v) || v < 0 || v > 1 {
			return fmt.Errorf("focus coordinates must be between 0 and 1, got %g", v)
		}
	}
	return nil
}

// ValidateZoom checks that a zoom factor is usable. Clamping to the device
// range happens in the controller.
func ValidateZoom(z ZoomRequest) error {
	if !finite(z.Scale) || z.Scale <= 0 {
		return fmt.Errorf("scale must be a positive number, got %g", z.Scale)
	}
	return nil
}

// ValidateExposure checks that a movement is a finite number.
func ValidateExposure(e ExposureRequest) error {
	if !finite(e.Delta) {
		return fmt.Errorf("delta must be a finite number, got %g", e.Delta)
	}
	return nil
}

// ValidateBounds checks a view rectangle.
func ValidateBounds(r geometry.Rect) error {
	for _, v := range []float64{r.X, r.Y, r.W, r.H} {
		if !finite(v) {
			return errors.New("bounds must be finite numbers")
		}
	}
	if r.W <= 0 || r.H <= 0 {
		return fmt.Errorf("bounds must have a positive size, got %gx%g", r.W, r.H)
	}
	return nil
}

// ---------- helpers ----------

// decodeJSON reads an optional JSON body into v. An empty body leaves v
// untouched. It writes the error response itself and reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Error(fmt.Errorf("web: encode response: %w", err))
	}
}

// errorBody is the JSON error response.
type errorBody struct {
	Error string      `json:"error"`
	Code  camera.Code `json:"code,omitempty"`
}

// statusFor maps controller errors onto HTTP status codes.
func statusFor(err error) int {
	var ce *camera.Error
	if !errors.As(err, &ce) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
	switch ce.Code {
	case camera.CodeDeviceUnavailable:
		return http.StatusServiceUnavailable
	case camera.CodeConfigurationLockFailed, camera.CodeCaptureInProgress, camera.CodeSessionNotRunning:
		return http.StatusConflict
	case camera.CodeCaptureFailed:
		return http.StatusBadGateway
	case camera.CodeUnsupportedCapability:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var ce *camera.Error
	if errors.As(err, &ce) {
		body.Code = ce.Code
	}
	writeJSON(w, statusFor(err), body)
}

// ready writes 503 when no camera is wired.
func (h *Handlers) ready(w http.ResponseWriter) bool {
	if h.Camera == nil {
		http.Error(w, "camera not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (h *Handlers) writeState(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, h.Camera.State())
}

// ---------- session ----------

// HandleStart handles POST /session/start.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	req := PositionRequest{Position: "back"}
	if !decodeJSON(w, r, &req) {
		return
	}
	pos, err := camera.ParsePosition(req.Position)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Camera.StartSession(r.Context(), pos); err != nil {
		writeError(w, err)
		return
	}
	h.writeState(w)
}

// HandleStop handles POST /session/stop.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.Camera.StopSession(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.writeState(w)
}

// HandleSwitch handles POST /camera/switch. Without a position it toggles.
func (h *Handlers) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req PositionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var err error
	if strings.TrimSpace(req.Position) == "" {
		err = h.Camera.ToggleCamera(r.Context())
	} else {
		pos, perr := camera.ParsePosition(req.Position)
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		err = h.Camera.SwitchCamera(r.Context(), pos == camera.Back)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeState(w)
}

// ---------- parameters ----------

// HandleFocus handles POST /focus.
func (h *Handlers) HandleFocus(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req FocusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateFocus(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Camera.SetFocusPoint(*req.X, *req.Y); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleExposure handles POST /exposure.
func (h *Handlers) HandleExposure(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req ExposureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateExposure(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	exp, err := h.Camera.SetExposureBias(req.Delta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// HandleZoom handles POST /zoom.
func (h *Handlers) HandleZoom(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req ZoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateZoom(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	z, err := h.Camera.SetZoom(req.Scale)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"zoom": z})
}

// HandleTorch handles POST /torch. Without "on" it toggles.
func (h *Handlers) HandleTorch(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req ToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var err error
	if req.On == nil {
		err = h.Camera.ToggleTorch()
	} else {
		err = h.Camera.SetTorch(*req.On)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeState(w)
}

// ---------- overlay ----------

// HandleGrid handles POST /grid. Without "on" it toggles.
func (h *Handlers) HandleGrid(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req ToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.On == nil {
		h.Camera.ToggleGrid()
	} else {
		h.Camera.SetGridVisible(*req.On)
	}
	h.writeState(w)
}

// HandleRatio handles POST /ratio. Without a ratio it cycles.
func (h *Handlers) HandleRatio(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req RatioRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Ratio) == "" {
		h.Camera.CycleRatio()
	} else {
		ratio, err := geometry.ParseRatio(req.Ratio)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.Camera.UpdateRatio(ratio)
	}
	h.writeState(w)
}

// HandleView handles POST /view, the preview rectangle in view coordinates.
func (h *Handlers) HandleView(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req geometry.Rect
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateBounds(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Camera.SetViewBounds(req)
	writeJSON(w, http.StatusOK, h.Camera.Overlay(h.now()))
}

// overlayResponse is the GET /overlay body.
type overlayResponse struct {
	Overlay geometry.Overlay `json:"overlay"`
	Focus   *focusResponse   `json:"focus,omitempty"`
}

type focusResponse struct {
	Center geometry.Point         `json:"center"`
	Size   float64                `json:"size"`
	Frame  gesture.IndicatorFrame `json:"frame"`
}

// HandleOverlay handles GET /overlay: the frame to draw now.
func (h *Handlers) HandleOverlay(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	now := h.now()
	resp := overlayResponse{Overlay: h.Camera.Overlay(now)}
	if ind, frame, ok := h.Camera.FocusIndicator(now); ok {
		resp.Focus = &focusResponse{Center: ind.Center, Size: ind.Size, Frame: frame}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---------- gestures and capture ----------

// HandleGesture handles POST /gesture with one raw gesture sample.
func (h *Handlers) HandleGesture(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var ev gesture.Event
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if !finite(ev.Location.X) || !finite(ev.Location.Y) || !finite(ev.Delta.X) || !finite(ev.Delta.Y) || !finite(ev.Scale) {
		http.Error(w, "gesture values must be finite numbers", http.StatusBadRequest)
		return
	}
	if err := h.Camera.HandleGesture(ev); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCapture handles POST /capture. It answers 200 with a JPEG, 204 when
// the capture produced nothing and 409 while another capture is in flight.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	ch, err := h.Camera.Capture(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	res := <-ch
	w.Header().Set("X-Capture-Id", res.RequestID)
	if res.None() {
		if res.Err != nil {
			w.Header().Set("X-Capture-Error", res.Err.Error())
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Capture-Cropped", fmt.Sprint(res.Cropped))
	if err := capture.EncodeJPEG(w, res.Image, h.JPEGQuality); err != nil {
		debug.Error(fmt.Errorf("web: encode capture %s: %w", res.RequestID, err))
	}
}

// ---------- state and events ----------

// HandleState handles GET /state.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	h.writeState(w)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleEvents handles GET /events for SSE. Every hub event is sent as one
// JSON envelope: {"t":"...","event":"zoom","data":{...}}.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	if h.Hub == nil {
		http.Error(w, "events not configured", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Hub.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.Encode(e, h.now())
			if err != nil {
				debug.Error(fmt.Errorf("web: encode %s event: %w", e.Name(), err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name(), data)
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
