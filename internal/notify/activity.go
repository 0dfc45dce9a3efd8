package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
)

// ActivityNotifier records activity events through a delegate log and
// pushes a notification for the events an operator has to act on
// (expired sessions and captcha walls stall every task on the server
// until someone logs in by hand).
type ActivityNotifier struct {
	log      core.ActivityLog
	notifier Notifier
	logger   *slog.Logger
}

var _ core.ActivityLog = (*ActivityNotifier)(nil)

func NewActivityNotifier(log core.ActivityLog, notifier Notifier, logger *slog.Logger) *ActivityNotifier {
	if notifier == nil {
		notifier = &NoOpNotifier{}
	}
	return &ActivityNotifier{log: log, notifier: notifier, logger: logger}
}

func (a *ActivityNotifier) LogActivity(ctx context.Context, executionID, serverID string, event core.ActivityEvent, message string) error {
	err := a.log.LogActivity(ctx, executionID, serverID, event, message)

	switch event {
	case core.ActivitySessionExpired, core.ActivityCaptchaBlocked:
		title := fmt.Sprintf("Plemiona %s: %s", serverID, event)
		if sendErr := a.notifier.Send(ctx, title, message); sendErr != nil {
			a.logger.Warn("push notification failed", "server_id", serverID, "event", string(event), "err", sendErr)
		}
	}

	return err
}
