package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/events"
)

// NotificationService logs issue lifecycle events. Delivery targets
// (email, webhooks) are out of scope; the subscription wiring is the part
// that matters for downstream consumers.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventIssueCreated, n.handleIssueCreated)
	n.dispatcher.Subscribe(events.EventIssueStatusChanged, n.handleIssueStatusChanged)
	n.dispatcher.Subscribe(events.EventIssueDeleted, n.handleIssueDeleted)
}

func (n *NotificationService) handleIssueCreated(_ context.Context, event events.Event) error {
	n.logger.Info("IssueCreated", zap.String("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleIssueStatusChanged(_ context.Context, event events.Event) error {
	n.logger.Info("IssueStatusChanged", zap.String("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleIssueDeleted(_ context.Context, event events.Event) error {
	n.logger.Info("IssueDeleted", zap.String("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	return nil
}
