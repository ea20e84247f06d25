package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/fall-sensor/internal/logic"
	"github.com/sweeney/fall-sensor/internal/sensor"
)

func TestTopicsFor(t *testing.T) {
	topics := TopicsFor("care/room1")
	if topics.Events != "care/room1/events" {
		t.Errorf("unexpected events topic: %s", topics.Events)
	}
	if topics.System != "care/room1/system" {
		t.Errorf("unexpected system topic: %s", topics.System)
	}
	if topics.SMS != "care/room1/sms/outbox" {
		t.Errorf("unexpected sms topic: %s", topics.SMS)
	}

	def := TopicsFor("")
	if def.System != DefaultPrefix+"/system" {
		t.Errorf("expected default prefix, got %s", def.System)
	}
}

func TestFormatFallPayloadExactJSON(t *testing.T) {
	event := logic.FallEvent{
		ID:          "abc",
		Timestamp:   time.Date(2026, 2, 10, 8, 30, 0, 0, time.FixedZone("CET", 3600)),
		Probability: 0.5,
	}

	payload, err := FormatFallPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"fall":{"id":"abc","timestamp":"2026-02-10T07:30:00Z","probability":0.5}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, exists := parsed["system"]["reason"]; exists {
		t.Error("RECONNECTED should not have reason field")
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	event := logic.FallEvent{ID: "e1", Timestamp: time.Now(), Probability: 0.9}
	if err := f.PublishFall(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.FallCount() != 1 {
		t.Errorf("expected 1 fall, got %d", f.FallCount())
	}
	if f.Falls[0].ID != "e1" {
		t.Errorf("unexpected fall id %s", f.Falls[0].ID)
	}
	if len(f.Payloads) != 1 {
		t.Errorf("expected 1 payload, got %d", len(f.Payloads))
	}
	if names := f.SystemEventNames(); len(names) != 1 || names[0] != "STARTUP" {
		t.Errorf("unexpected system events %v", names)
	}
	if !f.SystemEvents[0].Retained {
		t.Error("expected retained flag to be recorded")
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.PublishFall(logic.FallEvent{}); err == nil {
		t.Error("expected PublishFall error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected PublishSystem error")
	}
	if f.FallCount() != 0 || len(f.SystemEvents) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestSMSGatewaySend(t *testing.T) {
	tr := NewFakeTransport()
	gw := NewSMSGateway(tr, "home/fall-sensor/sms/outbox")

	if err := gw.Send(context.Background(), "+15550001", "help"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := tr.SentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].Topic != "home/fall-sensor/sms/outbox" {
		t.Errorf("unexpected topic %s", sent[0].Topic)
	}
	if sent[0].QoS != 1 {
		t.Errorf("expected QoS 1, got %d", sent[0].QoS)
	}

	var req SMSRequest
	if err := json.Unmarshal(sent[0].Payload, &req); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if req.To != "+15550001" || req.Body != "help" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestSMSGatewayDisconnected(t *testing.T) {
	tr := NewFakeTransport()
	tr.Disconnected = true
	gw := NewSMSGateway(tr, "sms")

	if err := gw.Send(context.Background(), "+15550001", "help"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestSMSGatewayHonoursContext(t *testing.T) {
	tr := NewFakeTransport()
	tr.Block = make(chan struct{})
	defer close(tr.Block)
	gw := NewSMSGateway(tr, "sms")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := gw.Send(ctx, "+15550001", "help"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestSampleFeedDelivers(t *testing.T) {
	tr := NewFakeTransport()
	topics := TopicsFor("")
	feed := NewSampleFeed(tr, topics)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	feed.SetClock(func() time.Time { return fixed })

	var got []logic.Sample
	for _, src := range sensor.Sources {
		if err := feed.Subscribe(src, func(s logic.Sample) { got = append(got, s) }); err != nil {
			t.Fatalf("subscribe %s: %v", src, err)
		}
	}

	tr.Inject(topics.Accel, []byte(`{"x":1,"y":2,"z":9.8}`))
	tr.Inject(topics.Gyro, []byte(`{"x":0.1,"y":0.2,"z":0.3,"timestamp":"2026-03-01T09:00:01Z"}`))

	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0].Source != logic.SourceAccelerometer || got[0].Axes != [3]float32{1, 2, 9.8} {
		t.Errorf("unexpected accelerometer sample %+v", got[0])
	}
	if !got[0].Time.Equal(fixed) {
		t.Errorf("expected receive time for untimestamped sample, got %v", got[0].Time)
	}
	if !got[1].Time.Equal(fixed) {
		t.Errorf("expected receive time to override the sender timestamp, got %v", got[1].Time)
	}
}

// A phone with a skewed clock must not push the cooldown into the future.
func TestSampleFeedIgnoresSenderClockForCooldown(t *testing.T) {
	tr := NewFakeTransport()
	topics := TopicsFor("")
	feed := NewSampleFeed(tr, topics)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	feed.SetClock(func() time.Time { return clock })

	var got []logic.Sample
	if err := feed.Subscribe(logic.SourceAccelerometer, func(s logic.Sample) { got = append(got, s) }); err != nil {
		t.Fatal(err)
	}

	future := clock.Add(24 * time.Hour).Format(time.RFC3339)
	tr.Inject(topics.Accel, []byte(`{"x":25,"y":20,"z":40,"timestamp":"`+future+`"}`))
	clock = clock.Add(10 * time.Minute)
	tr.Inject(topics.Accel, []byte(`{"x":25,"y":20,"z":40}`))
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}

	d := logic.NewDetector(logic.DefaultThreshold, 30*time.Second, got[0].Time)
	if e := d.Process(logic.Input{Probability: 0.95, Time: got[0].Time}); e == nil {
		t.Fatal("expected first detection")
	}
	if e := d.Process(logic.Input{Probability: 0.95, Time: got[1].Time}); e == nil {
		t.Errorf("expected a new detection once the cooldown elapsed in receive time, state=%s", d.State())
	}
}

func TestSampleFeedDropsMalformed(t *testing.T) {
	tr := NewFakeTransport()
	topics := TopicsFor("")
	feed := NewSampleFeed(tr, topics)

	delivered := 0
	if err := feed.Subscribe(logic.SourceAccelerometer, func(logic.Sample) { delivered++ }); err != nil {
		t.Fatal(err)
	}

	tr.Inject(topics.Accel, []byte(`not json`))
	tr.Inject(topics.Accel, []byte(`{"x":"one"}`))

	if delivered != 0 {
		t.Errorf("expected malformed samples to be dropped, got %d", delivered)
	}
}

func TestSampleFeedUnsubscribe(t *testing.T) {
	tr := NewFakeTransport()
	topics := TopicsFor("")
	feed := NewSampleFeed(tr, topics)

	if err := feed.Subscribe(logic.SourceAccelerometer, func(logic.Sample) {}); err != nil {
		t.Fatal(err)
	}
	if err := feed.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := feed.Unsubscribe(); err != nil {
		t.Fatalf("second Unsubscribe: %v", err)
	}
	if tr.Inject(topics.Accel, []byte(`{}`)) {
		t.Error("expected no handler after unsubscribe")
	}
}

func TestSampleFeedUnknownSource(t *testing.T) {
	feed := NewSampleFeed(NewFakeTransport(), Topics{})
	err := feed.Subscribe(logic.SourceGyroscope, func(logic.Sample) {})
	if !errors.Is(err, sensor.ErrSensorUnavailable) {
		t.Errorf("expected ErrSensorUnavailable, got %v", err)
	}
}
