//go:build linux

package sensor

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// DataReadyTrigger fires on rising edges of the IMU data-ready line
// using the Linux GPIO character device.
type DataReadyTrigger struct {
	pin int

	mu   sync.Mutex
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewDataReadyTrigger creates a trigger on BCM line pin of gpiochip0.
func NewDataReadyTrigger(pin int) (*DataReadyTrigger, error) {
	if pin < 0 {
		return nil, fmt.Errorf("invalid data-ready pin %d", pin)
	}
	return &DataReadyTrigger{pin: pin}, nil
}

// Start requests the line with edge detection. fire runs on the
// gpiocdev event goroutine.
func (t *DataReadyTrigger) Start(fire func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.line != nil {
		return nil
	}

	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return fmt.Errorf("open gpio chip: %w", err)
	}

	// Pull-down matches the Pi boot default; the IMU drives the line high when data is ready.
	line, err := chip.RequestLine(t.pin,
		gpiocdev.WithPullDown,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { fire() }),
	)
	if err != nil {
		chip.Close()
		return fmt.Errorf("request data-ready pin %d: %w", t.pin, err)
	}

	t.chip = chip
	t.line = line
	return nil
}

// Stop releases the line, reconfiguring it to a plain pulled-down input
// first so the pin is left in its boot state.
func (t *DataReadyTrigger) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.line != nil {
		if err := t.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure data-ready pin: %w", err))
		}
		if err := t.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close data-ready pin: %w", err))
		}
		t.line = nil
	}
	if t.chip != nil {
		if err := t.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		t.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
