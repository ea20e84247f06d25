package logic

import "fmt"

// WindowMode controls how samples are composed into a window.
type WindowMode string

const (
	// ModeInterleaved appends values in arrival order regardless of source.
	ModeInterleaved WindowMode = "interleaved"
	// ModePaired waits for a fresh reading from every source and emits
	// accelerometer axes followed by gyroscope axes.
	ModePaired WindowMode = "paired"
)

// ParseWindowMode converts a flag value into a WindowMode.
func ParseWindowMode(s string) (WindowMode, error) {
	switch WindowMode(s) {
	case ModeInterleaved, ModePaired:
		return WindowMode(s), nil
	}
	return "", fmt.Errorf("unknown window mode %q", s)
}

// WindowBuffer accumulates sample values into fixed-size windows.
// Not safe for concurrent use; caller must synchronize.
type WindowBuffer struct {
	mode   WindowMode
	size   int
	values []float32

	// paired mode: latest triple per source, cleared after each window
	accel, gyro   [AxesPerSample]float32
	hasAccel      bool
	hasGyro       bool
	windowsFilled int
}

// NewWindowBuffer creates a buffer emitting windows of the given size.
// Size must be a positive multiple of AxesPerSample so a sample can never
// straddle two windows. Paired mode requires exactly DefaultWindowSize.
func NewWindowBuffer(size int, mode WindowMode) (*WindowBuffer, error) {
	if size <= 0 || size%AxesPerSample != 0 {
		return nil, fmt.Errorf("window size %d must be a positive multiple of %d", size, AxesPerSample)
	}
	if mode == "" {
		mode = ModeInterleaved
	}
	if _, err := ParseWindowMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == ModePaired && size != DefaultWindowSize {
		return nil, fmt.Errorf("paired mode requires window size %d, got %d", DefaultWindowSize, size)
	}
	return &WindowBuffer{
		mode:   mode,
		size:   size,
		values: make([]float32, 0, size),
	}, nil
}

// Push adds a sample. It returns a completed window and true when the
// buffer fills; the buffer is then empty. Otherwise it returns nil, false.
func (b *WindowBuffer) Push(s Sample) (Window, bool) {
	if b.mode == ModePaired {
		return b.pushPaired(s)
	}

	b.values = append(b.values, s.Axes[:]...)
	if len(b.values) < b.size {
		return nil, false
	}
	return b.emit(), true
}

func (b *WindowBuffer) pushPaired(s Sample) (Window, bool) {
	switch s.Source {
	case SourceAccelerometer:
		b.accel = s.Axes
		b.hasAccel = true
	case SourceGyroscope:
		b.gyro = s.Axes
		b.hasGyro = true
	default:
		return nil, false
	}
	if !b.hasAccel || !b.hasGyro {
		return nil, false
	}

	b.values = append(b.values, b.accel[:]...)
	b.values = append(b.values, b.gyro[:]...)
	b.hasAccel, b.hasGyro = false, false
	return b.emit(), true
}

// emit copies the full window out and resets the buffer.
func (b *WindowBuffer) emit() Window {
	w := make(Window, b.size)
	copy(w, b.values)
	b.values = b.values[:0]
	b.windowsFilled++
	return w
}

// Len returns the number of values currently buffered.
func (b *WindowBuffer) Len() int {
	if b.mode == ModePaired {
		n := 0
		if b.hasAccel {
			n += AxesPerSample
		}
		if b.hasGyro {
			n += AxesPerSample
		}
		return n
	}
	return len(b.values)
}

// Size returns the configured window size.
func (b *WindowBuffer) Size() int {
	return b.size
}

// Reset discards any partially filled window.
func (b *WindowBuffer) Reset() {
	b.values = b.values[:0]
	b.hasAccel, b.hasGyro = false, false
}

// WindowsFilled returns the number of windows emitted.
func (b *WindowBuffer) WindowsFilled() int {
	return b.windowsFilled
}
