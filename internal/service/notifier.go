package service

import (
	"context"

	"freightdesk/internal/cache"
	"freightdesk/internal/metrics"

	"go.uber.org/zap"
)

// EventApprovalTransitioned is pushed to websocket clients after every committed transition
const EventApprovalTransitioned = "approval.transitioned"

// Publisher pushes an event to connected clients
type Publisher interface {
	Publish(event string, data interface{}) error
}

// Notifier fans a committed transition out to clients and drops the pending counts it made stale.
// Failures are logged; the transition itself is already durable.
type Notifier interface {
	Transitioned(ctx context.Context, t *TransitionResult)
}

type notifier struct {
	publisher Publisher
	counts    cache.Cache
	logger    *zap.Logger
}

func NewNotifier(publisher Publisher, counts cache.Cache, logger *zap.Logger) Notifier {
	return &notifier{publisher: publisher, counts: counts, logger: logger}
}

type transitionEvent struct {
	ID          string `json:"id"`
	RequestNo   string `json:"request_no"`
	RequestType string `json:"request_type"`
	Action      string `json:"action"`
	From        string `json:"from"`
	To          string `json:"to"`
	ActorID     string `json:"actor_id"`
}

func (n *notifier) Transitioned(ctx context.Context, t *TransitionResult) {
	keys := []string{PendingCountKeyAll()}
	for _, st := range t.Touched {
		if st.ApproverID != nil {
			keys = append(keys, PendingCountKeyForUser(*st.ApproverID))
		} else if st.ApproverRole != "" {
			keys = append(keys, PendingCountKeyForRole(st.ApproverRole))
		}
	}
	if err := n.counts.Delete(ctx, keys...); err != nil {
		metrics.SideEffectFailed("pending_count_invalidate")
		n.logger.Warn("pending count invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}

	ev := transitionEvent{
		ID:          t.Approval.ID,
		RequestNo:   t.Approval.RequestNo,
		RequestType: t.Approval.RequestType,
		Action:      string(t.Action),
		From:        string(t.From),
		To:          string(t.To),
		ActorID:     t.Actor.ID.String(),
	}
	if err := n.publisher.Publish(EventApprovalTransitioned, ev); err != nil {
		metrics.SideEffectFailed("broadcast")
		n.logger.Warn("approval broadcast failed", zap.String("request_no", ev.RequestNo), zap.Error(err))
	}
}
