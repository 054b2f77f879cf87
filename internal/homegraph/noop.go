package homegraph

import (
	"context"

	"go.uber.org/zap"
)

// NoopReporter logs what a real reporter would send. Used until the
// HomeGraph service-account integration is configured.
type NoopReporter struct {
	logger *zap.Logger
}

var _ Reporter = (*NoopReporter)(nil)

// NewNoopReporter builds a logging stand-in for the HomeGraph API.
func NewNoopReporter(logger *zap.Logger) *NoopReporter {
	if logger == nil {
		logger = zap.L()
	}
	return &NoopReporter{logger: logger}
}

func (r *NoopReporter) ReportState(_ context.Context, userID, deviceID string, state map[string]any) error {
	r.logger.Debug("homegraph report state skipped",
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
		zap.Any("state", state),
	)
	return nil
}

func (r *NoopReporter) RequestSync(_ context.Context, userID string) error {
	r.logger.Debug("homegraph request sync skipped", zap.String("user_id", userID))
	return nil
}

func (r *NoopReporter) DeleteAgentUser(_ context.Context, userID string) error {
	r.logger.Debug("homegraph delete agent user skipped", zap.String("user_id", userID))
	return nil
}
