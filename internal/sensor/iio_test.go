package sensor

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// manualTrigger fires only when the test asks it to.
type manualTrigger struct {
	mu      sync.Mutex
	fire    func()
	started int
	stopped int
}

func (m *manualTrigger) Start(fire func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fire = fire
	m.started++
	return nil
}

func (m *manualTrigger) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fire = nil
	m.stopped++
	return nil
}

func (m *manualTrigger) Fire() {
	m.mu.Lock()
	fire := m.fire
	m.mu.Unlock()
	if fire != nil {
		fire()
	}
}

func writeChannel(t *testing.T, dir, prefix string, scale string, x, y, z string) {
	t.Helper()
	files := map[string]string{
		prefix + "_x_raw": x,
		prefix + "_y_raw": y,
		prefix + "_z_raw": z,
	}
	if scale != "" {
		files[prefix+"_scale"] = scale
	}
	for name, v := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(v+"\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestIIORead(t *testing.T) {
	dir := t.TempDir()
	writeChannel(t, dir, "in_accel", "0.5", "2", "-4", "20")
	writeChannel(t, dir, "in_anglvel", "", "1", "2", "3")

	f := NewIIOFeedWithTrigger(dir, &manualTrigger{})

	axes, err := f.Read(logic.SourceAccelerometer)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if axes != [3]float32{1, -2, 10} {
		t.Errorf("expected scaled axes [1 -2 10], got %v", axes)
	}

	axes, err = f.Read(logic.SourceGyroscope)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if axes != [3]float32{1, 2, 3} {
		t.Errorf("expected unscaled axes [1 2 3], got %v", axes)
	}
}

func TestIIOReadBadValue(t *testing.T) {
	dir := t.TempDir()
	writeChannel(t, dir, "in_accel", "", "1", "nope", "3")

	f := NewIIOFeedWithTrigger(dir, &manualTrigger{})
	if _, err := f.Read(logic.SourceAccelerometer); err == nil {
		t.Error("expected parse error")
	}
}

func TestIIOSubscribeMissingSource(t *testing.T) {
	dir := t.TempDir()
	writeChannel(t, dir, "in_accel", "", "1", "2", "3")

	trig := &manualTrigger{}
	f := NewIIOFeedWithTrigger(dir, trig)

	if err := f.Subscribe(logic.SourceAccelerometer, func(logic.Sample) {}); err != nil {
		t.Fatalf("accelerometer subscribe failed: %v", err)
	}
	err := f.Subscribe(logic.SourceGyroscope, func(logic.Sample) {})
	if !errors.Is(err, ErrSensorUnavailable) {
		t.Errorf("expected ErrSensorUnavailable for gyroscope, got %v", err)
	}
	if trig.started != 1 {
		t.Errorf("expected trigger started once, got %d", trig.started)
	}
}

func TestIIOFireDeliversSubscribedSources(t *testing.T) {
	dir := t.TempDir()
	writeChannel(t, dir, "in_accel", "", "1", "2", "3")
	writeChannel(t, dir, "in_anglvel", "", "4", "5", "6")

	trig := &manualTrigger{}
	f := NewIIOFeedWithTrigger(dir, trig)

	var got []logic.Sample
	h := func(s logic.Sample) { got = append(got, s) }
	if err := f.Subscribe(logic.SourceAccelerometer, h); err != nil {
		t.Fatal(err)
	}
	if err := f.Subscribe(logic.SourceGyroscope, h); err != nil {
		t.Fatal(err)
	}

	trig.Fire()

	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0].Source != logic.SourceAccelerometer || got[1].Source != logic.SourceGyroscope {
		t.Errorf("expected accelerometer then gyroscope, got %s then %s", got[0].Source, got[1].Source)
	}
	if got[1].Axes != [3]float32{4, 5, 6} {
		t.Errorf("unexpected gyroscope axes %v", got[1].Axes)
	}
	if got[0].Time.IsZero() {
		t.Error("expected sample time to be set")
	}
}

func TestIIOUnsubscribeIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeChannel(t, dir, "in_accel", "", "1", "2", "3")

	trig := &manualTrigger{}
	f := NewIIOFeedWithTrigger(dir, trig)

	delivered := 0
	if err := f.Subscribe(logic.SourceAccelerometer, func(logic.Sample) { delivered++ }); err != nil {
		t.Fatal(err)
	}

	if err := f.Unsubscribe(); err != nil {
		t.Errorf("first Unsubscribe: %v", err)
	}
	if err := f.Unsubscribe(); err != nil {
		t.Errorf("second Unsubscribe: %v", err)
	}
	if trig.stopped != 1 {
		t.Errorf("expected trigger stopped once, got %d", trig.stopped)
	}

	trig.Fire()
	if delivered != 0 {
		t.Errorf("expected no deliveries after unsubscribe, got %d", delivered)
	}
}

func TestTickerTrigger(t *testing.T) {
	trig := NewTickerTrigger(5 * time.Millisecond)

	fired := make(chan struct{}, 1)
	if err := trig.Start(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("ticker trigger never fired")
	}

	if err := trig.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := trig.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestIIOUnsubscribeWhileTickerFiring(t *testing.T) {
	dir := t.TempDir()
	writeChannel(t, dir, "in_accel", "", "1", "2", "3")
	writeChannel(t, dir, "in_anglvel", "", "4", "5", "6")

	for i := 0; i < 20; i++ {
		f := NewIIOFeedWithTrigger(dir, NewTickerTrigger(50*time.Microsecond))

		got := make(chan struct{}, 1)
		h := func(logic.Sample) {
			select {
			case got <- struct{}{}:
			default:
			}
		}
		if err := f.Subscribe(logic.SourceAccelerometer, h); err != nil {
			t.Fatalf("iteration %d: Subscribe: %v", i, err)
		}
		if err := f.Subscribe(logic.SourceGyroscope, h); err != nil {
			t.Fatalf("iteration %d: Subscribe: %v", i, err)
		}

		select {
		case <-got:
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: ticker never delivered", i)
		}

		done := make(chan error, 1)
		go func() { done <- f.Unsubscribe() }()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("iteration %d: Unsubscribe: %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: Unsubscribe did not return while the trigger was firing", i)
		}
	}
}
