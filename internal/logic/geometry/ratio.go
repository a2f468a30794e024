package geometry

import (
	"fmt"
	"strings"
)

// Ratio is a capture aspect ratio, expressed as width:height of the
// landscape sensor frame.
type Ratio int

const (
	Ratio4x3 Ratio = iota
	Ratio1x1
	Ratio16x9
)

// Ratios lists every supported ratio in cycling order.
var Ratios = []Ratio{Ratio4x3, Ratio1x1, Ratio16x9}

func (r Ratio) String() string {
	switch r {
	case Ratio4x3:
		return "4:3"
	case Ratio1x1:
		return "1:1"
	case Ratio16x9:
		return "16:9"
	default:
		return fmt.Sprintf("ratio(%d)", int(r))
	}
}

// WidthOverHeight is the crop ratio applied to captured images.
func (r Ratio) WidthOverHeight() float64 {
	switch r {
	case Ratio1x1:
		return 1.0
	case Ratio16x9:
		return 16.0 / 9.0
	default:
		return 4.0 / 3.0
	}
}

// PortraitAspect is the width/height of the preview frame on a portrait
// screen: 3/4, 1 and 9/16.
func (r Ratio) PortraitAspect() float64 {
	return 1.0 / r.WidthOverHeight()
}

// Next returns the ratio that follows r: 4:3 → 1:1 → 16:9 → 4:3.
func (r Ratio) Next() Ratio {
	switch r {
	case Ratio4x3:
		return Ratio1x1
	case Ratio1x1:
		return Ratio16x9
	default:
		return Ratio4x3
	}
}

// ParseRatio accepts "4:3", "1:1" and "16:9" ("x" works as a separator too).
func ParseRatio(s string) (Ratio, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "x", ":") {
	case "4:3":
		return Ratio4x3, nil
	case "1:1":
		return Ratio1x1, nil
	case "16:9":
		return Ratio16x9, nil
	default:
		return Ratio4x3, fmt.Errorf("unknown ratio %q (want 4:3, 1:1 or 16:9)", s)
	}
}

func (r Ratio) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Ratio) UnmarshalText(b []byte) error {
	v, err := ParseRatio(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
