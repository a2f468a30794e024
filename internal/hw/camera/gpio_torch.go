package camera

import (
	"github.com/cjeanneret/camctl/internal/debug"
	"github.com/cjeanneret/camctl/internal/hw/gpio"
)

// GPIOTorch is a TorchLine for an LED torch switched by one GPIO pin:
// - GND: connected to Raspberry Pi ground
// - LED: on when the pin is HIGH (ActiveLow inverts this for driver boards
//   that sink current)
type GPIOTorch struct {
	gpio      gpio.Driver
	pin       int
	activeLow bool
}

// NewGPIOTorch configures pin as an output and switches the torch off.
func NewGPIOTorch(g gpio.Driver, pin int, activeLow bool) *GPIOTorch {
	t := &GPIOTorch{gpio: g, pin: pin, activeLow: activeLow}

	_ = g.SetupPin(pin, gpio.Output)
	_ = g.WritePin(pin, t.level(false))

	return t
}

func (t *GPIOTorch) level(on bool) gpio.Level {
	if t.activeLow {
		return gpio.Level(!on)
	}
	return gpio.Level(on)
}

// Set switches the torch.
func (t *GPIOTorch) Set(on bool) error {
	debug.Verbose("Torch: pin %d -> %v", t.pin, t.level(on))
	return t.gpio.WritePin(t.pin, t.level(on))
}

// Active reads the pin back.
func (t *GPIOTorch) Active() bool {
	lvl, err := t.gpio.ReadPin(t.pin)
	if err != nil {
		debug.Error(err)
		return false
	}
	return lvl == t.level(true)
}
