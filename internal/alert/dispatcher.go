package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sweeney/fall-sensor/internal/logging"
	"github.com/sweeney/fall-sensor/internal/logic"
	"github.com/sweeney/fall-sensor/internal/metrics"
)

// Config holds dispatcher tunables.
type Config struct {
	Message     string        // alert body; DefaultMessage when empty
	SendTimeout time.Duration // per-recipient deadline; 0 disables
	Rate        float64       // sends per second; 0 disables pacing
	Burst       int
}

// Report summarizes one dispatch.
type Report struct {
	EventID   string
	Attempted int
	Delivered int
	Outcomes  []logic.DispatchOutcome
}

// Failed returns the number of recipients that were not alerted.
func (r Report) Failed() int {
	return r.Attempted - r.Delivered
}

// Dispatcher alerts every recipient independently. A failure for one
// recipient never prevents alerting the rest.
type Dispatcher struct {
	gateway Gateway
	message string
	timeout time.Duration
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewDispatcher creates a dispatcher sending through gw.
func NewDispatcher(gw Gateway, cfg Config, m *metrics.Metrics) *Dispatcher {
	msg := cfg.Message
	if msg == "" {
		msg = DefaultMessage
	}
	d := &Dispatcher{
		gateway: gw,
		message: msg,
		timeout: cfg.SendTimeout,
		metrics: m,
		logger:  logging.WithComponent("alert"),
	}
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return d
}

// Message returns the alert body.
func (d *Dispatcher) Message() string {
	return d.message
}

// Dispatch sends the alert to each recipient in snapshot order and returns
// one outcome per recipient. An empty list performs no gateway calls.
func (d *Dispatcher) Dispatch(ctx context.Context, event logic.FallEvent, recipients []logic.Contact) Report {
	report := Report{EventID: event.ID}
	logger := d.logger.With().
		Str("eventId", event.ID).
		Float32("probability", event.Probability).
		Logger()

	if len(recipients) == 0 {
		logger.Warn().Msg("No emergency contacts found to alert")
		return report
	}

	start := time.Now()
	report.Outcomes = make([]logic.DispatchOutcome, 0, len(recipients))
	for _, c := range recipients {
		err := d.sendOne(ctx, c)
		outcome := logic.DispatchOutcome{ContactID: c.ID, Delivered: err == nil, Err: err}
		report.Outcomes = append(report.Outcomes, outcome)
		report.Attempted++
		d.metrics.RecordDispatch(outcome.Delivered)

		if err != nil {
			logger.Error().Err(err).Str("contactId", c.ID).Msg("Could not alert contact")
			continue
		}
		report.Delivered++
		logger.Info().Str("contactId", c.ID).Msg("Alert sent")
	}
	d.metrics.RecordDispatchDuration(time.Since(start).Seconds())

	logger.Info().
		Int("attempted", report.Attempted).
		Int("delivered", report.Delivered).
		Msg("Dispatch complete")
	return report
}

// sendOne alerts a single contact. Panics in the gateway are converted to
// a GatewayError so they stay local to this recipient.
func (d *Dispatcher) sendOne(ctx context.Context, c logic.Contact) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &GatewayError{ContactID: c.ID, Phone: c.Phone, Err: fmt.Errorf("gateway panic: %v", r)}
		}
	}()

	if err := ValidatePhone(c.Phone); err != nil {
		return &GatewayError{ContactID: c.ID, Phone: c.Phone, Err: err}
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return &GatewayError{ContactID: c.ID, Phone: c.Phone, Err: err}
		}
	}

	sendCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.gateway.Send(sendCtx, c.Phone, d.message); err != nil {
		return &GatewayError{ContactID: c.ID, Phone: c.Phone, Err: err}
	}
	return nil
}
