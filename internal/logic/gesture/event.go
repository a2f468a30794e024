package gesture

import (
	"fmt"
	"strings"

	"github.com/cjeanneret/camctl/internal/logic/geometry"
)

// Kind is the gesture type.
type Kind int

const (
	Tap Kind = iota
	Pan
	Pinch
)

var kindNames = map[Kind]string{Tap: "tap", Pan: "pan", Pinch: "pinch"}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for v, s := range kindNames {
		if s == name {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("unknown gesture kind %q", b)
}

// Phase is the recognizer phase of a gesture event.
type Phase int

const (
	Began Phase = iota
	Changed
	Ended
	Cancelled
)

var phaseNames = map[Phase]string{Began: "began", Changed: "changed", Ended: "ended", Cancelled: "cancelled"}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for v, s := range phaseNames {
		if s == name {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("unknown gesture phase %q", b)
}

// Event is one raw gesture sample in view coordinates.
//   - Tap: Location of the touch.
//   - Pan: Delta is the translation since the previous sample.
//   - Pinch: Scale is the recognizer scale since the previous sample; the
//     recognizer is reset to 1.0 after every sample.
type Event struct {
	Kind     Kind           `json:"kind"`
	Phase    Phase          `json:"phase"`
	Location geometry.Point `json:"location,omitempty"`
	Delta    geometry.Point `json:"delta,omitempty"`
	Scale    float64        `json:"scale,omitempty"`
}
