package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogEmailSender writes notifications to the log instead of delivering
// them. The development and test sender; SMTP delivery plugs in behind the
// same interface.
type LogEmailSender struct {
	logger *zap.SugaredLogger
}

// NewLogEmailSender creates a sender that logs each notification
func NewLogEmailSender(logger *zap.SugaredLogger) *LogEmailSender {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogEmailSender{logger: logger}
}

// SendEmail logs the notification body at info level
func (s *LogEmailSender) SendEmail(_ context.Context, address, body string) error {
	s.logger.Infow("Sending email",
		"recipient", address,
		"body", body,
	)
	return nil
}
