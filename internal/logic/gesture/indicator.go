package gesture

import (
	"time"

	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// Focus indicator animation.
const (
	IndicatorSize       = 100.0
	IndicatorScaleFrom  = 2.0
	IndicatorScaleTo    = 0.85
	IndicatorScaleTime  = 250 * time.Millisecond
	IndicatorFadeDelay  = 1500 * time.Millisecond
	IndicatorFadeTime   = 250 * time.Millisecond
	IndicatorFadedAlpha = 0.4
)

// FocusIndicator is the square shown where the user tapped to focus.
type FocusIndicator struct {
	Generation uint64
	Center     geometry.Point
	Size       float64
	ShownAt    time.Time
}

// IndicatorFrame is the indicator's appearance at one instant.
type IndicatorFrame struct {
	Scale float64 `json:"scale"`
	Alpha float64 `json:"alpha"`
}

// At returns the indicator's scale and alpha at now: the scale settles from
// 2.0 to 0.85, then after a further delay the alpha fades to 0.4.
func (f FocusIndicator) At(now time.Time) IndicatorFrame {
	t := now.Sub(f.ShownAt)
	if t < 0 {
		t = 0
	}
	frame := IndicatorFrame{Scale: IndicatorScaleTo, Alpha: 1}

	if t < IndicatorScaleTime {
		p := geometry.EaseInEaseOut.At(float64(t) / float64(IndicatorScaleTime))
		frame.Scale = IndicatorScaleFrom + (IndicatorScaleTo-IndicatorScaleFrom)*p
		return frame
	}

	fadeStart := IndicatorScaleTime + IndicatorFadeDelay
	switch {
	case t < fadeStart:
	case t < fadeStart+IndicatorFadeTime:
		p := geometry.EaseInEaseOut.At(float64(t-fadeStart) / float64(IndicatorFadeTime))
		frame.Alpha = 1 + (IndicatorFadedAlpha-1)*p
	default:
		frame.Alpha = IndicatorFadedAlpha
	}
	return frame
}
