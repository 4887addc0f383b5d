package notify

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/eleven-am/warden/internal/logging"
)

// LogNotifier writes notifications to the log. It stands in for SNS when no
// topic is configured.
type LogNotifier struct {
	logger log.FieldLogger
}

func NewLogNotifier(logger log.FieldLogger) *LogNotifier {
	return &LogNotifier{logger: logging.OrDefault(logger, "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, subject, message string) error {
	n.logger.WithField("subject", subject).Warn(message)
	return nil
}
