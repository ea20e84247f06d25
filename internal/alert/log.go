package alert

import (
	"context"

	"github.com/sweeney/fall-sensor/internal/logging"
)

// LogGateway only logs messages. Used when no messaging backend is configured.
type LogGateway struct{}

// Send logs the message and reports success.
func (LogGateway) Send(_ context.Context, phone, body string) error {
	logger := logging.WithComponent("gateway")
	logger.Info().Str("phone", phone).Str("body", body).Msg("Alert (log-only gateway)")
	return nil
}
