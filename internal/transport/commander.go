// Package transport defines the outbound port toward physical devices.
// The message bus to hardware is deployed separately; this backend only
// hands finished state over the port.
package transport

import (
	"context"

	"go.uber.org/zap"
)

// Commander delivers a desired state to a physical device. An error
// means delivery failed; the caller decides whether that is fatal for
// its own operation (the fulfillment layer treats it as non-fatal
// because the database is the source of truth for reported state).
type Commander interface {
	SendState(ctx context.Context, deviceID string, state map[string]any) error
}

// NoopCommander logs the would-be delivery. Stands in for the MQTT
// bridge in environments without a broker.
type NoopCommander struct {
	logger *zap.Logger
}

var _ Commander = (*NoopCommander)(nil)

// NewNoopCommander builds the logging stand-in.
func NewNoopCommander(logger *zap.Logger) *NoopCommander {
	if logger == nil {
		logger = zap.L()
	}
	return &NoopCommander{logger: logger}
}

func (c *NoopCommander) SendState(_ context.Context, deviceID string, state map[string]any) error {
	c.logger.Debug("device command skipped",
		zap.String("device_id", deviceID),
		zap.Any("state", state),
	)
	return nil
}
