package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/fall-sensor/internal/logic"
)

func TestFakeFeedDeliver(t *testing.T) {
	f := NewFakeFeed()
	var got []logic.Sample

	if err := f.Subscribe(logic.SourceAccelerometer, func(s logic.Sample) { got = append(got, s) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := logic.Sample{Source: logic.SourceAccelerometer, Axes: [3]float32{1, 2, 3}, Time: time.Now()}
	if !f.Deliver(s) {
		t.Error("expected delivery to subscribed source")
	}
	if f.Deliver(logic.Sample{Source: logic.SourceGyroscope}) {
		t.Error("expected no delivery to unsubscribed source")
	}
	if len(got) != 1 || got[0].Axes[2] != 3 {
		t.Errorf("unexpected samples: %+v", got)
	}
}

func TestFakeFeedMissingSource(t *testing.T) {
	f := NewFakeFeed()
	f.Missing[logic.SourceGyroscope] = true

	err := f.Subscribe(logic.SourceGyroscope, func(logic.Sample) {})
	if !errors.Is(err, ErrSensorUnavailable) {
		t.Errorf("expected ErrSensorUnavailable, got %v", err)
	}
	if f.Subscribed(logic.SourceGyroscope) {
		t.Error("missing source should not be subscribed")
	}
}

func TestFakeFeedUnsubscribeIdempotent(t *testing.T) {
	f := NewFakeFeed()
	f.Subscribe(logic.SourceAccelerometer, func(logic.Sample) {})

	for i := 0; i < 3; i++ {
		if err := f.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe %d: %v", i, err)
		}
	}
	if f.Subscribed(logic.SourceAccelerometer) {
		t.Error("expected no subscriptions after Unsubscribe")
	}
	if f.UnsubscribeCalls != 3 {
		t.Errorf("expected 3 unsubscribe calls, got %d", f.UnsubscribeCalls)
	}
}

func TestDisabledFeed(t *testing.T) {
	var f Disabled
	for _, src := range Sources {
		if err := f.Subscribe(src, func(logic.Sample) {}); !errors.Is(err, ErrSensorUnavailable) {
			t.Errorf("%s: expected ErrSensorUnavailable, got %v", src, err)
		}
	}
	if err := f.Unsubscribe(); err != nil {
		t.Errorf("Unsubscribe: %v", err)
	}
}
